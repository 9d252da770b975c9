package csvimport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Run("single-byte export decodes as windows-1252", func(t *testing.T) {
		text, enc, err := Decode([]byte("Owner\nHans M\xfcller \x80"), EncodingAuto)
		require.NoError(t, err)
		assert.Equal(t, EncodingWindows1252, enc)
		assert.Equal(t, "Owner\nHans Müller €", text)
	})

	t.Run("plain ascii stays windows-1252", func(t *testing.T) {
		text, enc, err := Decode([]byte("a,b"), "")
		require.NoError(t, err)
		assert.Equal(t, EncodingWindows1252, enc)
		assert.Equal(t, "a,b", text)
	})

	t.Run("multi-byte utf-8 falls back to utf-8", func(t *testing.T) {
		text, enc, err := Decode([]byte("Owner\nHans Müller"), EncodingAuto)
		require.NoError(t, err)
		assert.Equal(t, EncodingUTF8, enc)
		assert.Equal(t, "Owner\nHans Müller", text)
	})

	t.Run("bom forces utf-8 and is stripped", func(t *testing.T) {
		text, enc, err := Decode([]byte("\xEF\xBB\xBFStage"), EncodingAuto)
		require.NoError(t, err)
		assert.Equal(t, EncodingUTF8, enc)
		assert.Equal(t, "Stage", text)
	})

	t.Run("declared utf-8 rejects invalid bytes", func(t *testing.T) {
		_, _, err := Decode([]byte("M\xfcller"), "UTF-8")
		var encErr *EncodingError
		require.ErrorAs(t, err, &encErr)
		assert.Equal(t, EncodingUTF8, encErr.Encoding)
	})

	t.Run("declared latin1 label", func(t *testing.T) {
		text, _, err := Decode([]byte("M\xfcller"), "iso-8859-1")
		require.NoError(t, err)
		assert.Equal(t, "Müller", text)
	})

	t.Run("unknown declared encoding", func(t *testing.T) {
		_, _, err := Decode([]byte("abc"), "klingon-8")
		var encErr *EncodingError
		require.ErrorAs(t, err, &encErr)
		assert.Equal(t, "klingon-8", encErr.Encoding)
	})
}

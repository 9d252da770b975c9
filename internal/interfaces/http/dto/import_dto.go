package dto

// UploadForm carries the optional parse overrides of an upload. The file
// itself is read from the multipart "file" field.
type UploadForm struct {
	Encoding  string `form:"encoding" binding:"omitempty,max=40"`
	Delimiter string `form:"delimiter" binding:"omitempty,delimiter"`
}

// SelectionRequest selects or deselects one row
type SelectionRequest struct {
	Selected *bool `json:"selected" binding:"required"`
}

// BulkSelectionRequest toggles many rows, optionally scoped to one match status
type BulkSelectionRequest struct {
	Selected    *bool  `json:"selected" binding:"required"`
	MatchStatus string `json:"match_status" binding:"omitempty,oneof=new changed unchanged conflict pending"`
}

// AssignRequest assigns a directory user to one row
type AssignRequest struct {
	UserID string `json:"user_id" binding:"required,uuid"`
}

// AssignByOwnerRequest assigns a user to every conflict row with the given export owner name
type AssignByOwnerRequest struct {
	OwnerName string `json:"owner_name" binding:"required,max=255"`
	UserID    string `json:"user_id" binding:"required,uuid"`
}

// CommitEvent is one server-sent event of a streamed commit
type CommitEvent struct {
	Completed  int    `json:"completed"`
	Total      int    `json:"total"`
	RowIndex   int    `json:"row_index"`
	ExternalID string `json:"external_id,omitempty"`
}

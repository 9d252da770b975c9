package bulk

import (
	"strings"

	"github.com/salesplan/backend/internal/domain/crm"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Matcher classifies export records against the permanent store and the
// user directory. It performs no I/O.
type Matcher struct {
	users map[string]crm.User
}

// NewMatcher indexes the directory by normalized display name. Names shared
// by several users are dropped so they never auto-match.
func NewMatcher(users []crm.User) *Matcher {
	index := make(map[string]crm.User, len(users))
	ambiguous := make(map[string]bool)
	for _, u := range users {
		key := NormalizeName(u.Name)
		if key == "" {
			continue
		}
		if _, dup := index[key]; dup {
			ambiguous[key] = true
			continue
		}
		index[key] = u
	}
	for key := range ambiguous {
		delete(index, key)
	}
	return &Matcher{users: index}
}

// NormalizeName folds case, unicode composition and whitespace so that
// "  JANE   doe" and "Jane Doe" compare equal.
func NormalizeName(name string) string {
	name = norm.NFC.String(name)
	name = strings.Join(strings.Fields(name), " ")
	return cases.Fold().String(name)
}

// MatchOwner resolves an export owner name to a directory user
func (m *Matcher) MatchOwner(name string) (crm.User, bool) {
	u, ok := m.users[NormalizeName(name)]
	return u, ok
}

// Match builds one classified staging row per record. New and changed rows
// are selected by default.
func (m *Matcher) Match(batch *ImportBatch, records []ExportRecord, existing map[string]*crm.Opportunity) []*StagingRow {
	rows := make([]*StagingRow, 0, len(records))
	for _, rec := range records {
		row := NewStagingRow(batch.ID, rec)
		m.apply(row, existing)
		row.IsSelected = row.MatchStatus.IsCommittable()
		rows = append(rows, row)
	}
	return rows
}

// Rematch reclassifies a staged row against fresh data. Manual owner
// assignments and the current selection survive; a row that became
// unchanged is deselected.
func (m *Matcher) Rematch(row *StagingRow, existing map[string]*crm.Opportunity) {
	m.apply(row, existing)
}

func (m *Matcher) apply(row *StagingRow, existing map[string]*crm.Opportunity) {
	rec := row.Record

	row.OpportunityID = nil
	row.Changes = nil
	if rec.ExternalID != "" {
		if opp, ok := existing[rec.ExternalID]; ok {
			id := opp.ID
			row.OpportunityID = &id
			if changes := opp.Diff(rec.TrackedValues()); len(changes) > 0 {
				row.Changes = changes
			}
		}
	}

	if row.UserMatchStatus != UserMatchManual {
		if u, ok := m.MatchOwner(rec.OwnerName); ok {
			id := u.ID
			row.MatchedUserID = &id
			row.UserMatchStatus = UserMatchMatched
		} else {
			row.MatchedUserID = nil
			row.UserMatchStatus = UserMatchUnmatched
		}
	}

	row.classify()
}

package resolve

import (
	"time"

	"github.com/roach88/rosterbridge/internal/model"
)

var t0 = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return t0.Add(time.Duration(minutes) * time.Minute)
}

func mapped(id int64, ordinal int, stableID, name string, created, verified time.Time) model.MappingEntry {
	return model.MappingEntry{
		ID: id, Ordinal: ordinal, StableID: stableID, DisplayName: name,
		State: model.StateMapped, CreatedAt: created, LastVerifiedAt: verified,
	}
}

func stale(id int64, ordinal int, stableID, name string, created, superseded time.Time) model.MappingEntry {
	s := superseded
	return model.MappingEntry{
		ID: id, Ordinal: ordinal, StableID: stableID, DisplayName: name,
		State: model.StateStale, CreatedAt: created, LastVerifiedAt: created, SupersededAt: &s,
	}
}

func annotation(id, sender, content string, ordinal int, created time.Time) model.Annotation {
	return model.Annotation{ID: id, Sender: sender, Content: content, TargetOrdinal: ordinal, CreatedAt: created}
}

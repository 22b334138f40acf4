package postgres

import "testing"

func TestWriterByNameResolvesEveryStrategy(t *testing.T) {
	cases := []struct {
		name string
		want TierWriter
	}{
		{"", UpsertWriter{}},
		{"upsert", UpsertWriter{}},
		{"batch", BatchInsertWriter{}},
		{"prepared", PreparedBatchWriter{}},
		{"raw", RawBulkWriter{}},
		{"bulk", RawBulkWriter{}},
		{" Raw ", RawBulkWriter{}},
	}
	for _, tc := range cases {
		if got := WriterByName(tc.name); got != tc.want {
			t.Fatalf("writer for %q: got=%T want=%T", tc.name, got, tc.want)
		}
	}
}

func TestWriterByNameRejectsUnknown(t *testing.T) {
	if got := WriterByName("streaming"); got != nil {
		t.Fatalf("expected nil for unknown name, got %T", got)
	}
}

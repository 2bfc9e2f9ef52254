package psql

import (
	"testing"
	"time"

	"docbatch/internal/repository"
)

func TestJobRowConversion(t *testing.T) {
	now := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	rows := []repository.Row{
		{ID: "a", Position: 0, Status: "queued", Priority: "high", Data: []byte(`{"id":"a"}`)},
		{ID: "b", Position: repository.Unordered, Status: "completed", Priority: "low", Data: []byte(`{"id":"b"}`)},
	}

	records := toJobRows(rows, now)
	if records[1].Position != repository.Unordered || !records[0].UpdatedAt.Equal(now) {
		t.Fatalf("records = %+v", records)
	}
	back := fromJobRows(records)
	for i := range rows {
		if back[i].ID != rows[i].ID || back[i].Position != rows[i].Position || string(back[i].Data) != string(rows[i].Data) {
			t.Fatalf("row %d = %+v, want %+v", i, back[i], rows[i])
		}
	}
	if (JobRow{}).TableName() != "batch_jobs" {
		t.Fatalf("table = %q", (JobRow{}).TableName())
	}
}

package tools

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResultFormat(t *testing.T) {
	r := Result{
		Success:  true,
		Tool:     "create_reminder",
		Input:    map[string]string{"title": "Call Bob", "due_date": "2026-03-06"},
		Output:   "Call Bob: Due Mar 6",
		Duration: 42 * time.Millisecond,
	}
	want := "Tool: create_reminder\n" +
		"Status: ✅ SUCCESS\n" +
		"Input: due_date=2026-03-06, title=Call Bob\n" +
		"Output: Call Bob: Due Mar 6\n" +
		"Execution Time: 42ms"
	assert.Equal(t, want, r.Format())
}

func TestResultFormatFailureOmitsEmptyFields(t *testing.T) {
	r := Result{Tool: "read_journal", Error: "journal missing"}
	want := "Tool: read_journal\n" +
		"Status: ❌ FAILED\n" +
		"Error: journal missing\n" +
		"Execution Time: 0ms"
	assert.Equal(t, want, r.Format())
}

func TestDowngradeReturnsCopy(t *testing.T) {
	orig := Result{Success: true, Tool: "create_calendar_event"}
	down := orig.Downgrade("Creation failed - no confirmation returned")

	assert.True(t, orig.Success)
	assert.Empty(t, orig.Error)
	assert.False(t, down.Success)
	assert.Equal(t, "Creation failed - no confirmation returned", down.Error)

	again := down.Downgrade("outer")
	assert.Equal(t, "outer (Creation failed - no confirmation returned)", again.Error)
}

package memory

import (
	"github.com/clawinfra/tenx/internal/tools"
)

const journalPreview = 100

// Describe maps a successful tool call to the action tag and details worth
// remembering. Calls that change nothing undoable report ok=false.
func Describe(call tools.Call) (action string, details map[string]string, ok bool) {
	a := call.Args
	switch call.Name {
	case "create_calendar_event":
		return "created_event", map[string]string{
			"title": a.String("title"),
			"start": a.String("start"),
		}, true
	case "append_to_weekly_journal":
		content := a.String("content")
		if r := []rune(content); len(r) > journalPreview {
			content = string(r[:journalPreview])
		}
		return "added_journal", map[string]string{"content": content}, true
	case "create_or_update_task":
		return "created_task", map[string]string{
			"title":    a.String("title"),
			"assignee": a.String("assignee"),
		}, true
	case "update_calendar_event":
		return "updated_event", map[string]string{
			"old_title": a.String("event_title"),
			"new_title": a.String("new_title"),
			"new_start": a.String("new_start"),
		}, true
	case "delete_calendar_event":
		return "deleted_event", map[string]string{
			"title": a.String("event_title"),
			"date":  a.String("event_date"),
		}, true
	case "delete_journal_entry":
		return "deleted_journal", map[string]string{
			"date":          a.String("date"),
			"content_match": a.String("content_match"),
		}, true
	case "delete_task":
		d := map[string]string{}
		if a.Has("task_id") {
			d["task_id"] = a.String("task_id")
		}
		if a.Has("title_match") {
			d["title"] = a.String("title_match")
		}
		return "deleted_task", d, true
	}
	return "", nil, false
}

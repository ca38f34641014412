package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"
)

var (
	app = kingpin.New("taskloom", "Task lifecycle and time tracking from the command line")

	// Task commands
	createCmd      = app.Command("create", "Create a new task")
	createTitle    = createCmd.Arg("title", "Task title").Required().String()
	createDesc     = createCmd.Flag("description", "Task description").Short('d').String()
	createTags     = createCmd.Flag("tag", "Tag (repeatable)").Strings()
	createPriority = createCmd.Flag("priority", "LOW, MEDIUM, HIGH or URGENT").Default("MEDIUM").String()
	createDue      = createCmd.Flag("due", "Due date (YYYY-MM-DD or RFC3339)").String()
	createEstimate = createCmd.Flag("estimate", "Estimated hours").Float64()
	createParent   = createCmd.Flag("parent", "Parent task ID").String()
	createAssignee = createCmd.Flag("assignee", "Assignee user ID").String()

	listCmd      = app.Command("list", "List tasks")
	listStatus   = listCmd.Flag("status", "Filter by status").String()
	listAssignee = listCmd.Flag("assignee", "Filter by assignee").String()
	listParent   = listCmd.Flag("parent", "Filter by parent task ID").String()
	listLimit    = listCmd.Flag("limit", "Maximum number of tasks").Default("50").Int()
	listOffset   = listCmd.Flag("offset", "Skip the first N tasks").Int()

	boardCmd    = app.Command("board", "List a status column as visible to you")
	boardStatus = boardCmd.Arg("status", "BACKLOG, TODO, IN_PROGRESS, REVIEW, DONE or ARCHIVED").Required().String()

	showCmd = app.Command("show", "Show task details")
	showID  = showCmd.Arg("id", "Task ID").Required().String()

	updateCmd       = app.Command("update", "Update task fields")
	updateID        = updateCmd.Arg("id", "Task ID").Required().String()
	updateTitle     = updateCmd.Flag("title", "New title").String()
	updateDesc      = updateCmd.Flag("description", "New description").String()
	updateTags      = updateCmd.Flag("tag", "Replace tags (repeatable)").Strings()
	updateDue       = updateCmd.Flag("due", "Due date (YYYY-MM-DD or RFC3339)").String()
	updateClearDue  = updateCmd.Flag("clear-due", "Remove the due date").Bool()
	updateEstimate  = updateCmd.Flag("estimate", "Estimated hours").Float64()
	updateActual    = updateCmd.Flag("actual", "Actual hours").Float64()
	updateArchive   = updateCmd.Flag("archive", "Archive the task").Bool()
	updateUnarchive = updateCmd.Flag("unarchive", "Unarchive the task").Bool()

	deleteCmd = app.Command("delete", "Delete a task, its subtasks, comments and attachments")
	deleteID  = deleteCmd.Arg("id", "Task ID").Required().String()

	statusCmd   = app.Command("status", "Change task status")
	statusID    = statusCmd.Arg("id", "Task ID").Required().String()
	statusValue = statusCmd.Arg("status", "BACKLOG, TODO, IN_PROGRESS, REVIEW, DONE or ARCHIVED").Required().String()

	priorityCmd   = app.Command("priority", "Change task priority")
	priorityID    = priorityCmd.Arg("id", "Task ID").Required().String()
	priorityValue = priorityCmd.Arg("priority", "LOW, MEDIUM, HIGH or URGENT").Required().String()

	assignCmd  = app.Command("assign", "Assign a task to a user")
	assignID   = assignCmd.Arg("id", "Task ID").Required().String()
	assignUser = assignCmd.Arg("user", "Assignee user ID (empty to unassign)").String()

	trackCmd      = app.Command("track", "Time tracking")
	trackStartCmd = trackCmd.Command("start", "Start tracking time on a task")
	trackStartID  = trackStartCmd.Arg("id", "Task ID").Required().String()
	trackStopCmd  = trackCmd.Command("stop", "Stop tracking and bank the elapsed time")
	trackStopID   = trackStopCmd.Arg("id", "Task ID").Required().String()

	subtaskCmd          = app.Command("subtask", "Subtask hierarchy")
	subtaskAttachCmd    = subtaskCmd.Command("attach", "Attach a task under a parent")
	subtaskAttachID     = subtaskAttachCmd.Arg("id", "Task ID").Required().String()
	subtaskAttachParent = subtaskAttachCmd.Arg("parent", "Parent task ID").Required().String()
	subtaskDetachCmd    = subtaskCmd.Command("detach", "Detach a task from its parent")
	subtaskDetachID     = subtaskDetachCmd.Arg("id", "Task ID").Required().String()
	subtaskListCmd      = subtaskCmd.Command("list", "List direct subtasks")
	subtaskListID       = subtaskListCmd.Arg("id", "Task ID").Required().String()

	searchCmd   = app.Command("search", "Search tasks by text, tag or task number")
	searchQuery = searchCmd.Arg("query", "Search query").Required().String()

	// Comment commands
	commentCmd       = app.Command("comment", "Comments")
	commentAddCmd    = commentCmd.Command("add", "Add a comment to a task")
	commentAddTask   = commentAddCmd.Arg("task", "Task ID").Required().String()
	commentAddBody   = commentAddCmd.Arg("body", "Comment body").Required().String()
	commentAddParent = commentAddCmd.Flag("reply-to", "Parent comment ID").String()
	commentListCmd   = commentCmd.Command("list", "List comments on a task")
	commentListTask  = commentListCmd.Arg("task", "Task ID").Required().String()

	// Template commands
	templateCmd       = app.Command("template", "Task templates")
	templateSaveCmd   = templateCmd.Command("save", "Save a task as a reusable template")
	templateSaveTask  = templateSaveCmd.Arg("task", "Task ID").Required().String()
	templateSaveName  = templateSaveCmd.Flag("name", "Template name (defaults to the task title)").String()
	templateListCmd   = templateCmd.Command("list", "List templates")
	templateApplyCmd  = templateCmd.Command("apply", "Create a new task from a template")
	templateApplyID   = templateApplyCmd.Arg("id", "Template ID").Required().String()
	templateDeleteCmd = templateCmd.Command("delete", "Delete a template")
	templateDeleteID  = templateDeleteCmd.Arg("id", "Template ID").Required().String()

	// Notification commands
	notifyCmd        = app.Command("notifications", "Notifications")
	notifyListCmd    = notifyCmd.Command("list", "List notifications").Default()
	notifyListAll    = notifyListCmd.Flag("all", "Include read notifications").Bool()
	notifyReadCmd    = notifyCmd.Command("read", "Mark a notification read")
	notifyReadID     = notifyReadCmd.Arg("id", "Notification ID").Required().String()
	notifyReadAllCmd = notifyCmd.Command("read-all", "Mark all notifications read")
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client, err := newClientFromEnv()
	if err != nil {
		fatal(err)
	}
	ctx := context.Background()

	switch command {
	case createCmd.FullCommand():
		handleCreate(ctx, client)
	case listCmd.FullCommand():
		handleList(ctx, client)
	case boardCmd.FullCommand():
		handleBoard(ctx, client)
	case showCmd.FullCommand():
		handleShow(ctx, client)
	case updateCmd.FullCommand():
		handleUpdate(ctx, client)
	case deleteCmd.FullCommand():
		handleDelete(ctx, client)
	case statusCmd.FullCommand():
		handleStatus(ctx, client)
	case priorityCmd.FullCommand():
		handlePriority(ctx, client)
	case assignCmd.FullCommand():
		handleAssign(ctx, client)
	case trackStartCmd.FullCommand():
		handleTrackStart(ctx, client)
	case trackStopCmd.FullCommand():
		handleTrackStop(ctx, client)
	case subtaskAttachCmd.FullCommand():
		handleSubtaskAttach(ctx, client)
	case subtaskDetachCmd.FullCommand():
		handleSubtaskDetach(ctx, client)
	case subtaskListCmd.FullCommand():
		handleSubtaskList(ctx, client)
	case searchCmd.FullCommand():
		handleSearch(ctx, client)
	case commentAddCmd.FullCommand():
		handleCommentAdd(ctx, client)
	case commentListCmd.FullCommand():
		handleCommentList(ctx, client)
	case templateSaveCmd.FullCommand():
		handleTemplateSave(ctx, client)
	case templateListCmd.FullCommand():
		handleTemplateList(ctx, client)
	case templateApplyCmd.FullCommand():
		handleTemplateApply(ctx, client)
	case templateDeleteCmd.FullCommand():
		handleTemplateDelete(ctx, client)
	case notifyListCmd.FullCommand():
		handleNotifyList(ctx, client)
	case notifyReadCmd.FullCommand():
		handleNotifyRead(ctx, client)
	case notifyReadAllCmd.FullCommand():
		handleNotifyReadAll(ctx, client)
	}
}

// parseDueDate accepts a bare date (local midnight) or a full RFC3339 timestamp.
func parseDueDate(s string) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid due date %q (want YYYY-MM-DD or RFC3339)", s)
	}
	return t, nil
}

func handleCreate(ctx context.Context, client *apiClient) {
	req := createTaskRequest{
		Title:       *createTitle,
		Description: *createDesc,
		Tags:        *createTags,
		Priority:    *createPriority,
		ParentID:    *createParent,
		AssigneeID:  *createAssignee,
	}
	if *createDue != "" {
		due, err := parseDueDate(*createDue)
		if err != nil {
			fatal(err)
		}
		req.DueDate = &due
	}
	if *createEstimate > 0 {
		req.EstimatedHours = createEstimate
	}
	t, err := client.CreateTask(ctx, req)
	if err != nil {
		fatal(err)
	}
	printTaskLine(t)
	dimColor.Printf("id: %s\n", t.ID)
}

func handleList(ctx context.Context, client *apiClient) {
	tasks, total, err := client.ListTasks(ctx, *listStatus, *listAssignee, *listParent, *listLimit, *listOffset)
	if err != nil {
		fatal(err)
	}
	printTaskList(tasks, total)
}

func handleBoard(ctx context.Context, client *apiClient) {
	tasks, err := client.ListBoard(ctx, *boardStatus)
	if err != nil {
		fatal(err)
	}
	printTaskList(tasks, len(tasks))
}

func handleShow(ctx context.Context, client *apiClient) {
	d, err := client.GetTask(ctx, *showID)
	if err != nil {
		fatal(err)
	}
	printTaskDetails(d)
}

func handleUpdate(ctx context.Context, client *apiClient) {
	var req updateTaskRequest
	if *updateTitle != "" {
		req.Title = updateTitle
	}
	if *updateDesc != "" {
		req.Description = updateDesc
	}
	if len(*updateTags) > 0 {
		req.Tags = *updateTags
	}
	if *updateDue != "" {
		due, err := parseDueDate(*updateDue)
		if err != nil {
			fatal(err)
		}
		req.DueDate = &due
	}
	req.ClearDueDate = *updateClearDue
	if *updateEstimate > 0 {
		req.EstimatedHours = updateEstimate
	}
	if *updateActual > 0 {
		req.ActualHours = updateActual
	}
	if *updateArchive {
		archived := true
		req.Archived = &archived
	}
	if *updateUnarchive {
		archived := false
		req.Archived = &archived
	}
	t, err := client.UpdateTask(ctx, *updateID, req)
	if err != nil {
		fatal(err)
	}
	printTaskLine(t)
}

func handleDelete(ctx context.Context, client *apiClient) {
	if err := client.DeleteTask(ctx, *deleteID); err != nil {
		fatal(err)
	}
	fmt.Printf("deleted %s\n", *deleteID)
}

func handleStatus(ctx context.Context, client *apiClient) {
	t, err := client.SetStatus(ctx, *statusID, *statusValue)
	if err != nil {
		fatal(err)
	}
	printTaskLine(t)
}

func handlePriority(ctx context.Context, client *apiClient) {
	t, err := client.SetPriority(ctx, *priorityID, *priorityValue)
	if err != nil {
		fatal(err)
	}
	printTaskLine(t)
}

func handleAssign(ctx context.Context, client *apiClient) {
	t, err := client.SetAssignee(ctx, *assignID, *assignUser)
	if err != nil {
		fatal(err)
	}
	printTaskLine(t)
}

func handleTrackStart(ctx context.Context, client *apiClient) {
	t, err := client.StartTracking(ctx, *trackStartID)
	if err != nil {
		fatal(err)
	}
	color.New(color.FgYellow).Printf("tracking started on #%d\n", t.TaskNumber)
}

func handleTrackStop(ctx context.Context, client *apiClient) {
	t, err := client.StopTracking(ctx, *trackStopID)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("tracking stopped on #%d, total %s\n", t.TaskNumber, formatSeconds(t.TrackingTimeSeconds))
}

func handleSubtaskAttach(ctx context.Context, client *apiClient) {
	t, err := client.AttachSubtask(ctx, *subtaskAttachID, *subtaskAttachParent)
	if err != nil {
		fatal(err)
	}
	printTaskLine(t)
}

func handleSubtaskDetach(ctx context.Context, client *apiClient) {
	t, err := client.DetachSubtask(ctx, *subtaskDetachID)
	if err != nil {
		fatal(err)
	}
	printTaskLine(t)
}

func handleSubtaskList(ctx context.Context, client *apiClient) {
	tasks, err := client.ListSubtasks(ctx, *subtaskListID)
	if err != nil {
		fatal(err)
	}
	printTaskList(tasks, len(tasks))
}

func handleSearch(ctx context.Context, client *apiClient) {
	tasks, err := client.SearchTasks(ctx, *searchQuery)
	if err != nil {
		fatal(err)
	}
	printTaskList(tasks, len(tasks))
}

func handleCommentAdd(ctx context.Context, client *apiClient) {
	c, err := client.AddComment(ctx, *commentAddTask, *commentAddBody, *commentAddParent)
	if err != nil {
		fatal(err)
	}
	printComment(c)
}

func handleCommentList(ctx context.Context, client *apiClient) {
	comments, err := client.ListComments(ctx, *commentListTask)
	if err != nil {
		fatal(err)
	}
	for _, c := range comments {
		printComment(c)
	}
}

func handleTemplateSave(ctx context.Context, client *apiClient) {
	tpl, err := client.SaveTemplate(ctx, *templateSaveTask, *templateSaveName)
	if err != nil {
		fatal(err)
	}
	printTemplate(tpl)
}

func handleTemplateList(ctx context.Context, client *apiClient) {
	templates, err := client.ListTemplates(ctx)
	if err != nil {
		fatal(err)
	}
	for _, tpl := range templates {
		printTemplate(tpl)
	}
}

func handleTemplateApply(ctx context.Context, client *apiClient) {
	t, err := client.ApplyTemplate(ctx, *templateApplyID)
	if err != nil {
		fatal(err)
	}
	printTaskLine(t)
	dimColor.Printf("id: %s\n", t.ID)
}

func handleTemplateDelete(ctx context.Context, client *apiClient) {
	if err := client.DeleteTemplate(ctx, *templateDeleteID); err != nil {
		fatal(err)
	}
	fmt.Printf("deleted template %s\n", *templateDeleteID)
}

func handleNotifyList(ctx context.Context, client *apiClient) {
	notifications, err := client.ListNotifications(ctx, !*notifyListAll)
	if err != nil {
		fatal(err)
	}
	if len(notifications) == 0 {
		dimColor.Println("no notifications")
		return
	}
	for _, n := range notifications {
		printNotification(n)
	}
}

func handleNotifyRead(ctx context.Context, client *apiClient) {
	if err := client.MarkNotificationRead(ctx, *notifyReadID); err != nil {
		fatal(err)
	}
}

func handleNotifyReadAll(ctx context.Context, client *apiClient) {
	if err := client.MarkAllNotificationsRead(ctx); err != nil {
		fatal(err)
	}
}

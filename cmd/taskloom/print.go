package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/taskloom/taskloom/internal/comment"
	"github.com/taskloom/taskloom/internal/notification"
	"github.com/taskloom/taskloom/internal/task"
	"github.com/taskloom/taskloom/internal/template"
)

var (
	numberColor = color.New(color.FgCyan)
	dimColor    = color.New(color.Faint)
	titleColor  = color.New(color.Bold)
	errorColor  = color.New(color.FgRed)
)

func statusColor(s task.Status) *color.Color {
	switch s {
	case task.StatusInProgress:
		return color.New(color.FgYellow)
	case task.StatusReview:
		return color.New(color.FgMagenta)
	case task.StatusDone:
		return color.New(color.FgGreen)
	case task.StatusArchived:
		return color.New(color.Faint)
	default:
		return color.New(color.FgBlue)
	}
}

func priorityColor(p task.Priority) *color.Color {
	switch p {
	case task.PriorityUrgent:
		return color.New(color.FgRed, color.Bold)
	case task.PriorityHigh:
		return color.New(color.FgRed)
	case task.PriorityLow:
		return color.New(color.Faint)
	default:
		return color.New(color.Reset)
	}
}

func fatal(err error) {
	errorColor.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func printTaskLine(t *task.Task) {
	numberColor.Printf("#%-5d ", t.TaskNumber)
	statusColor(t.Status).Printf("%-12s ", t.Status)
	priorityColor(t.Priority).Printf("%-7s ", t.Priority)
	titleColor.Printf("%s", t.Title)
	if t.AssigneeID != "" {
		dimColor.Printf("  @%s", t.AssigneeID)
	}
	if t.DueDate != nil {
		dimColor.Printf("  due %s", t.DueDate.Local().Format("2006-01-02"))
	}
	if t.TrackingActive {
		color.New(color.FgYellow).Printf("  [tracking]")
	}
	fmt.Println()
}

func printTaskList(tasks []*task.Task, total int) {
	for _, t := range tasks {
		printTaskLine(t)
	}
	if total > len(tasks) {
		dimColor.Printf("(%d of %d tasks)\n", len(tasks), total)
	}
}

func printTaskDetails(d *task.Details) {
	numberColor.Printf("#%d ", d.TaskNumber)
	titleColor.Printf("%s\n", d.Title)
	dimColor.Printf("id: %s\n", d.ID)
	fmt.Print("status: ")
	statusColor(d.Status).Println(string(d.Status))
	fmt.Print("priority: ")
	priorityColor(d.Priority).Println(string(d.Priority))
	if d.Description != "" {
		fmt.Println(d.Description)
	}
	if len(d.Tags) > 0 {
		fmt.Printf("tags: %s\n", strings.Join(d.Tags, ", "))
	}
	fmt.Printf("creator: %s\n", d.CreatorID)
	if d.AssigneeID != "" {
		fmt.Printf("assignee: %s\n", d.AssigneeID)
	}
	if d.ParentID != "" {
		fmt.Printf("parent: %s\n", d.ParentID)
	}
	if d.DueDate != nil {
		fmt.Printf("due: %s\n", d.DueDate.Local().Format("2006-01-02 15:04"))
	}
	if d.EstimatedHours != nil {
		fmt.Printf("estimated: %.2fh\n", *d.EstimatedHours)
	}
	if d.ActualHours != nil {
		fmt.Printf("actual: %.2fh\n", *d.ActualHours)
	}
	fmt.Printf("tracked: %s", formatSeconds(d.TrackingTimeSeconds))
	if d.TrackingActive {
		color.New(color.FgYellow).Printf(" (running since %s)", d.TrackingStartTime.Local().Format("15:04:05"))
	}
	fmt.Println()
	if d.Archived {
		dimColor.Println("archived")
	}
	if d.SavedAsTemplate {
		dimColor.Println("saved as template")
	}
	fmt.Printf("subtasks: %d  comments: %d  attachments: %d\n",
		d.SubtaskCount, d.CommentCount, d.AttachmentCount)
	dimColor.Printf("created %s, updated %s\n",
		d.CreatedAt.Local().Format(time.RFC3339), d.UpdatedAt.Local().Format(time.RFC3339))
}

func formatSeconds(s int64) string {
	if s < 60 {
		return fmt.Sprintf("%ds", s)
	}
	h := s / 3600
	m := (s % 3600) / 60
	if h == 0 {
		return fmt.Sprintf("%dm%ds", m, s%60)
	}
	return fmt.Sprintf("%dh%02dm", h, m)
}

func printComment(c *comment.Comment) {
	titleColor.Printf("%s ", c.AuthorID)
	dimColor.Printf("%s", c.CreatedAt.Local().Format("2006-01-02 15:04"))
	if c.ParentID != "" {
		dimColor.Printf(" (reply to %s)", c.ParentID)
	}
	dimColor.Printf("  [%s]\n", c.ID)
	fmt.Println(indent(c.Body, "  "))
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = prefix + lines[i]
	}
	return strings.Join(lines, "\n")
}

func printTemplate(t *template.TaskTemplate) {
	titleColor.Printf("%s ", t.Name)
	dimColor.Printf("[%s]\n", t.ID)
	fmt.Printf("  title: %s", t.Title)
	if t.Priority != "" {
		fmt.Print("  priority: ")
		priorityColor(t.Priority).Print(string(t.Priority))
	}
	if len(t.Tags) > 0 {
		fmt.Printf("  tags: %s", strings.Join(t.Tags, ", "))
	}
	fmt.Println()
}

func printNotification(n *notification.Notification) {
	marker := "*"
	if n.Read {
		marker = " "
	}
	fmt.Printf("%s ", marker)
	titleColor.Printf("%s ", n.Title)
	dimColor.Printf("%s  [%s]\n", n.CreatedAt.Local().Format("2006-01-02 15:04"), n.ID)
	if n.Message != "" {
		fmt.Println(indent(n.Message, "    "))
	}
}

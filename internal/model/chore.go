package model

import (
	"slices"
	"time"
)

type Frequency string

const (
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
	FrequencyCustom   Frequency = "custom"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly, FrequencyCustom:
		return true
	}
	return false
}

// ChoreTemplate is a catalog entry from which tasks are enqueued.
type ChoreTemplate struct {
	ID               string    `json:"id" firestore:"-"`
	Title            string    `json:"title" firestore:"title"`
	Details          string    `json:"details" firestore:"details"`
	Tags             []string  `json:"tags" firestore:"tags"`
	Frequency        Frequency `json:"frequency" firestore:"frequency"`
	BaseScore        int       `json:"base_score" firestore:"baseScore"`
	EstimatedMinutes int       `json:"estimated_minutes" firestore:"estimatedMinutes"`
}

type TaskStatus string

const (
	StatusBacklog    TaskStatus = "backlog"
	StatusInProgress TaskStatus = "inProgress"
	StatusCompleted  TaskStatus = "completed"
)

// TaskStatuses lists every status in board order.
var TaskStatuses = []TaskStatus{StatusBacklog, StatusInProgress, StatusCompleted}

func (s TaskStatus) Valid() bool {
	return slices.Contains(TaskStatuses, s)
}

type TaskItem struct {
	ID               string            `json:"id" firestore:"-"`
	Title            string            `json:"title" firestore:"title"`
	Details          string            `json:"details" firestore:"details"`
	Status           TaskStatus        `json:"status" firestore:"status"`
	DueDate          time.Time         `json:"due_date" firestore:"dueDate"`
	Score            int               `json:"score" firestore:"score"`
	RoomTag          string            `json:"room_tag" firestore:"roomTag"`
	AssignedMembers  []HouseholdMember `json:"assigned_members" firestore:"assignedMembers"`
	OriginTemplateID string            `json:"origin_template_id,omitempty" firestore:"originTemplateId,omitempty"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty" firestore:"completedAt"`
	EstimatedMinutes int               `json:"estimated_minutes" firestore:"estimatedMinutes"`
}

// IsAssigned reports whether m is one of the task's assignees.
func (t TaskItem) IsAssigned(m HouseholdMember) bool {
	return ContainsMember(t.AssignedMembers, m)
}

// Clone returns a copy that shares no slices or pointers with t.
func (t TaskItem) Clone() TaskItem {
	c := t
	c.AssignedMembers = slices.Clone(t.AssignedMembers)
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	return c
}

// TaskFromTemplate instantiates a backlog task from tmpl. The first template
// tag becomes the room tag.
func TaskFromTemplate(tmpl ChoreTemplate, assignee *HouseholdMember, due time.Time) TaskItem {
	t := TaskItem{
		Title:            tmpl.Title,
		Details:          tmpl.Details,
		Status:           StatusBacklog,
		DueDate:          due,
		Score:            tmpl.BaseScore,
		OriginTemplateID: tmpl.ID,
		EstimatedMinutes: tmpl.EstimatedMinutes,
	}
	if len(tmpl.Tags) > 0 {
		t.RoomTag = tmpl.Tags[0]
	}
	if assignee != nil {
		t.AssignedMembers = []HouseholdMember{*assignee}
	}
	return t
}

// TaskDetails are the editable fields that never change a task's status.
type TaskDetails struct {
	Title            string    `json:"title"`
	Details          string    `json:"details"`
	DueDate          time.Time `json:"due_date"`
	Score            int       `json:"score"`
	RoomTag          string    `json:"room_tag"`
	EstimatedMinutes int       `json:"estimated_minutes"`
}

// WithDetails returns t with d applied.
func (t TaskItem) WithDetails(d TaskDetails) TaskItem {
	c := t.Clone()
	c.Title = d.Title
	c.Details = d.Details
	c.DueDate = d.DueDate
	c.Score = d.Score
	c.RoomTag = d.RoomTag
	c.EstimatedMinutes = d.EstimatedMinutes
	return c
}

// TaskPatch holds only the fields that changed between two versions of a
// task. Nil pointers are untouched fields.
type TaskPatch struct {
	Title            *string
	Details          *string
	Status           *TaskStatus
	DueDate          *time.Time
	Score            *int
	RoomTag          *string
	AssignedMembers  *[]HouseholdMember
	CompletedAtSet   bool
	CompletedAt      *time.Time
	EstimatedMinutes *int
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return len(p.Fields()) == 0
}

// Fields lists the changed field names in document-key form.
func (p TaskPatch) Fields() []string {
	var f []string
	if p.Title != nil {
		f = append(f, "title")
	}
	if p.Details != nil {
		f = append(f, "details")
	}
	if p.Status != nil {
		f = append(f, "status")
	}
	if p.DueDate != nil {
		f = append(f, "dueDate")
	}
	if p.Score != nil {
		f = append(f, "score")
	}
	if p.RoomTag != nil {
		f = append(f, "roomTag")
	}
	if p.AssignedMembers != nil {
		f = append(f, "assignedMembers")
	}
	if p.CompletedAtSet {
		f = append(f, "completedAt")
	}
	if p.EstimatedMinutes != nil {
		f = append(f, "estimatedMinutes")
	}
	return f
}

// Apply returns t with the patch applied.
func (p TaskPatch) Apply(t TaskItem) TaskItem {
	c := t.Clone()
	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.Details != nil {
		c.Details = *p.Details
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.DueDate != nil {
		c.DueDate = *p.DueDate
	}
	if p.Score != nil {
		c.Score = *p.Score
	}
	if p.RoomTag != nil {
		c.RoomTag = *p.RoomTag
	}
	if p.AssignedMembers != nil {
		c.AssignedMembers = slices.Clone(*p.AssignedMembers)
	}
	if p.CompletedAtSet {
		if p.CompletedAt == nil {
			c.CompletedAt = nil
		} else {
			at := *p.CompletedAt
			c.CompletedAt = &at
		}
	}
	if p.EstimatedMinutes != nil {
		c.EstimatedMinutes = *p.EstimatedMinutes
	}
	return c
}

// DiffTask computes the patch that turns old into next.
func DiffTask(old, next TaskItem) TaskPatch {
	var p TaskPatch
	if old.Title != next.Title {
		p.Title = &next.Title
	}
	if old.Details != next.Details {
		p.Details = &next.Details
	}
	if old.Status != next.Status {
		p.Status = &next.Status
	}
	if !old.DueDate.Equal(next.DueDate) {
		p.DueDate = &next.DueDate
	}
	if old.Score != next.Score {
		p.Score = &next.Score
	}
	if old.RoomTag != next.RoomTag {
		p.RoomTag = &next.RoomTag
	}
	if !slices.Equal(old.AssignedMembers, next.AssignedMembers) {
		m := slices.Clone(next.AssignedMembers)
		p.AssignedMembers = &m
	}
	if !sameTime(old.CompletedAt, next.CompletedAt) {
		p.CompletedAtSet = true
		p.CompletedAt = next.CompletedAt
	}
	if old.EstimatedMinutes != next.EstimatedMinutes {
		p.EstimatedMinutes = &next.EstimatedMinutes
	}
	return p
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

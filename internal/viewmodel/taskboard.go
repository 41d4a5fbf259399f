package viewmodel

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/chorely/internal/listener"
	"github.com/dukerupert/chorely/internal/mainloop"
	"github.com/dukerupert/chorely/internal/model"
	"github.com/dukerupert/chorely/internal/observable"
	"github.com/dukerupert/chorely/internal/state"
)

type BoardFilter string

const (
	FilterAll        BoardFilter = "all"
	FilterMine       BoardFilter = "mine"
	FilterUnassigned BoardFilter = "unassigned"
)

func (f BoardFilter) Valid() bool {
	return f == FilterAll || f == FilterMine || f == FilterUnassigned
}

// Section is one status column of the board.
type Section struct {
	Status model.TaskStatus `json:"status"`
	Tasks  []model.TaskItem `json:"tasks"`
}

type BoardState struct {
	Filter       BoardFilter       `json:"filter"`
	StatusFilter *model.TaskStatus `json:"status_filter,omitempty"`
	SelectedDay  *time.Time        `json:"selected_day,omitempty"`
	Week         []time.Time       `json:"week"`
	Sections     []Section         `json:"sections"`
	Total        int               `json:"total"`
	Loading      bool              `json:"loading"`
}

// StartOfDay returns midnight of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// StartOfWeek returns midnight of the Sunday on or before t.
func StartOfWeek(t time.Time) time.Time {
	day := StartOfDay(t)
	return day.AddDate(0, 0, -int(day.Weekday()))
}

// OnDay reports whether t falls in [startOfDay(day), startOfDay(day)+1 day).
func OnDay(t, day time.Time) bool {
	start := StartOfDay(day)
	end := start.AddDate(0, 0, 1)
	t = t.In(start.Location())
	return !t.Before(start) && t.Before(end)
}

// FilterTasks applies the board, status and date filters.
func FilterTasks(tasks []model.TaskItem, me *model.HouseholdMember, filter BoardFilter, status *model.TaskStatus, day *time.Time) []model.TaskItem {
	var out []model.TaskItem
	for _, t := range tasks {
		switch filter {
		case FilterMine:
			if me == nil || !t.IsAssigned(*me) {
				continue
			}
		case FilterUnassigned:
			if len(t.AssignedMembers) > 0 {
				continue
			}
		}
		if status != nil && t.Status != *status {
			continue
		}
		if day != nil && !OnDay(t.DueDate, *day) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// GroupByStatus returns one section per status in board order. With a status
// filter only that section is returned.
func GroupByStatus(tasks []model.TaskItem, status *model.TaskStatus) []Section {
	statuses := model.TaskStatuses
	if status != nil {
		statuses = []model.TaskStatus{*status}
	}
	sections := make([]Section, 0, len(statuses))
	for _, st := range statuses {
		sec := Section{Status: st, Tasks: []model.TaskItem{}}
		for _, t := range tasks {
			if t.Status == st {
				sec.Tasks = append(sec.Tasks, t)
			}
		}
		sections = append(sections, sec)
	}
	return sections
}

// TaskBoardViewModel derives the filtered and grouped board from the task
// list, the signed-in member and the member directory.
type TaskBoardViewModel struct {
	tasks    *state.TaskBoardStore
	auth     *state.AuthStore
	members  *state.MemberDirectory
	dispatch mainloop.Dispatcher
	logger   *slog.Logger

	state  *observable.Value[BoardState]
	tokens listener.Bag

	mu        sync.Mutex
	filter    BoardFilter
	status    *model.TaskStatus
	selected  *time.Time
	weekStart time.Time
}

// NewTaskBoardViewModel starts with every task visible and the calendar on
// the week containing now.
func NewTaskBoardViewModel(tasks *state.TaskBoardStore, auth *state.AuthStore, members *state.MemberDirectory, now time.Time, dispatch mainloop.Dispatcher, logger *slog.Logger) *TaskBoardViewModel {
	vm := &TaskBoardViewModel{
		tasks:     tasks,
		auth:      auth,
		members:   members,
		dispatch:  dispatch,
		logger:    logger,
		state:     observable.NewValue(BoardState{Filter: FilterAll}),
		filter:    FilterAll,
		weekStart: StartOfWeek(now),
	}
	vm.tokens.Add(tasks.Tasks().Subscribe(func(state.Snapshot[model.TaskItem]) { vm.recompute() }))
	vm.tokens.Add(auth.Member().Subscribe(func(*model.HouseholdMember) { vm.recompute() }))
	vm.tokens.Add(members.Members().Subscribe(func(state.Snapshot[model.HouseholdMember]) { vm.recompute() }))
	return vm
}

func (vm *TaskBoardViewModel) State() observable.Observable[BoardState] { return vm.state }

// refreshAssignees replaces stored assignee snapshots with the directory's
// current entries so renamed members display correctly.
func refreshAssignees(tasks []model.TaskItem, directory []model.HouseholdMember) []model.TaskItem {
	out := make([]model.TaskItem, len(tasks))
	for i, t := range tasks {
		t = t.Clone()
		for j, m := range t.AssignedMembers {
			if fresh, ok := state.LookupMember(directory, m); ok {
				t.AssignedMembers[j] = fresh
			}
		}
		out[i] = t
	}
	return out
}

func (vm *TaskBoardViewModel) recompute() {
	snap := vm.tasks.Tasks().Get()
	directory := vm.members.Members().Get()
	me := vm.auth.CurrentMember()

	vm.mu.Lock()
	filter := vm.filter
	status := vm.status
	selected := vm.selected
	weekStart := vm.weekStart
	vm.mu.Unlock()

	tasks := refreshAssignees(snap.Items, directory.Items)
	visible := FilterTasks(tasks, me, filter, status, selected)

	week := make([]time.Time, 7)
	for i := range week {
		week[i] = weekStart.AddDate(0, 0, i)
	}

	vm.state.Set(BoardState{
		Filter:       filter,
		StatusFilter: status,
		SelectedDay:  selected,
		Week:         week,
		Sections:     GroupByStatus(visible, status),
		Total:        len(visible),
		Loading:      snap.Loading(),
	})
}

func (vm *TaskBoardViewModel) update(fn func()) {
	vm.mu.Lock()
	fn()
	vm.mu.Unlock()
	vm.dispatch.Post(vm.recompute)
}

func (vm *TaskBoardViewModel) SetFilter(f BoardFilter) {
	if !f.Valid() {
		f = FilterAll
	}
	vm.update(func() { vm.filter = f })
}

// SetStatusFilter limits the board to one status; nil shows every status.
func (vm *TaskBoardViewModel) SetStatusFilter(s *model.TaskStatus) {
	vm.update(func() {
		if s == nil {
			vm.status = nil
			return
		}
		st := *s
		vm.status = &st
	})
}

// SelectDay filters the board to tasks due on day and moves the calendar to
// the week containing it.
func (vm *TaskBoardViewModel) SelectDay(day time.Time) {
	vm.update(func() {
		d := StartOfDay(day)
		vm.selected = &d
		vm.weekStart = StartOfWeek(d)
	})
}

// ClearDay removes the date filter.
func (vm *TaskBoardViewModel) ClearDay() {
	vm.update(func() { vm.selected = nil })
}

func (vm *TaskBoardViewModel) NextWeek()     { vm.shiftWeek(1) }
func (vm *TaskBoardViewModel) PreviousWeek() { vm.shiftWeek(-1) }

// shiftWeek moves the visible window by seven days. The selected day moves
// with it only if it would fall outside the new window.
func (vm *TaskBoardViewModel) shiftWeek(dir int) {
	vm.update(func() {
		vm.weekStart = vm.weekStart.AddDate(0, 0, 7*dir)
		if vm.selected == nil {
			return
		}
		end := vm.weekStart.AddDate(0, 0, 7)
		if vm.selected.Before(vm.weekStart) || !vm.selected.Before(end) {
			d := vm.selected.AddDate(0, 0, 7*dir)
			vm.selected = &d
		}
	})
}

func (vm *TaskBoardViewModel) Close() { vm.tokens.CancelAll() }

// Package memory provides deterministic in-memory implementations of every
// service. They back tests and the demo mode, replay synchronously on
// subscribe and support one-shot failure injection per operation.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/invite"
	"github.com/dukerupert/chorely/internal/listener"
	"github.com/dukerupert/chorely/internal/model"
	"github.com/dukerupert/chorely/internal/service"
)

type householdRecord struct {
	summary model.HouseholdSummary
	members []string
}

// Store holds every household-scoped collection and implements the
// household, profile, tag, template, task, reward catalog and ledger
// services.
type Store struct {
	mu          sync.Mutex
	households  map[string]*householdRecord
	order       []string
	profiles    map[string]model.UserProfile
	tags        map[string][]model.TagItem
	templates   map[string][]model.ChoreTemplate
	tasks       map[string][]model.TaskItem
	rewards     map[string][]model.RewardItem
	redemptions map[string][]model.RewardRedemption
	failures    map[string]error

	// Now stamps redemptions. Tests replace it.
	Now func() time.Time

	householdFeed  *feed[[]model.HouseholdSummary]
	profileFeed    *feed[*model.UserProfile]
	memberFeed     *feed[[]model.UserProfile]
	tagFeed        *feed[[]model.TagItem]
	templateFeed   *feed[[]model.ChoreTemplate]
	taskFeed       *feed[[]model.TaskItem]
	rewardFeed     *feed[[]model.RewardItem]
	redemptionFeed *feed[[]model.RewardRedemption]
}

var (
	_ service.HouseholdService     = (*Store)(nil)
	_ service.ProfileService       = (*Store)(nil)
	_ service.TagService           = (*Store)(nil)
	_ service.TemplateService      = (*Store)(nil)
	_ service.TaskService          = (*Store)(nil)
	_ service.RewardCatalogService = (*Store)(nil)
	_ service.RewardLedgerService  = (*Store)(nil)
)

func New() *Store {
	return &Store{
		households:     make(map[string]*householdRecord),
		profiles:       make(map[string]model.UserProfile),
		tags:           make(map[string][]model.TagItem),
		templates:      make(map[string][]model.ChoreTemplate),
		tasks:          make(map[string][]model.TaskItem),
		rewards:        make(map[string][]model.RewardItem),
		redemptions:    make(map[string][]model.RewardRedemption),
		failures:       make(map[string]error),
		Now:            time.Now,
		householdFeed:  newFeed[[]model.HouseholdSummary](),
		profileFeed:    newFeed[*model.UserProfile](),
		memberFeed:     newFeed[[]model.UserProfile](),
		tagFeed:        newFeed[[]model.TagItem](),
		templateFeed:   newFeed[[]model.ChoreTemplate](),
		taskFeed:       newFeed[[]model.TaskItem](),
		rewardFeed:     newFeed[[]model.RewardItem](),
		redemptionFeed: newFeed[[]model.RewardRedemption](),
	}
}

// Backend returns a service bundle over s, auth and kv.
func (s *Store) Backend(auth *Auth, kv *KV) service.Backend {
	return service.Backend{
		Households:  s,
		Profiles:    s,
		Tags:        s,
		Templates:   s,
		Tasks:       s,
		Rewards:     s,
		Redemptions: s,
		Auth:        auth,
		Settings:    kv,
	}
}

// FailNext makes the next call to op (a method name such as "UpdateTask")
// return err without changing any state.
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	s.failures[op] = err
	s.mu.Unlock()
}

// takeFailure must be called with s.mu held.
func (s *Store) takeFailure(op string) error {
	err, ok := s.failures[op]
	if !ok {
		return nil
	}
	delete(s.failures, op)
	return err
}

// FailObserve pushes err to every observer of collection in scope.
// Collections: households, profile, members, tags, templates, tasks,
// rewards, redemptions.
func (s *Store) FailObserve(collection, scope string, err error) {
	switch collection {
	case "households":
		s.householdFeed.fail(scope, err)
	case "profile":
		s.profileFeed.fail(scope, err)
	case "members":
		s.memberFeed.fail(scope, err)
	case "tags":
		s.tagFeed.fail(scope, err)
	case "templates":
		s.templateFeed.fail(scope, err)
	case "tasks":
		s.taskFeed.fail(scope, err)
	case "rewards":
		s.rewardFeed.fail(scope, err)
	case "redemptions":
		s.redemptionFeed.fail(scope, err)
	}
}

// ObserverCount returns the number of live observers of collection in scope.
func (s *Store) ObserverCount(collection, scope string) int {
	switch collection {
	case "households":
		return s.householdFeed.count(scope)
	case "profile":
		return s.profileFeed.count(scope)
	case "members":
		return s.memberFeed.count(scope)
	case "tags":
		return s.tagFeed.count(scope)
	case "templates":
		return s.templateFeed.count(scope)
	case "tasks":
		return s.taskFeed.count(scope)
	case "rewards":
		return s.rewardFeed.count(scope)
	case "redemptions":
		return s.redemptionFeed.count(scope)
	}
	return 0
}

func indexByID[T any](list []T, id string, idOf func(T) string) int {
	return slices.IndexFunc(list, func(v T) bool { return idOf(v) == id })
}

// Households

func (s *Store) householdsFor(userID string) []model.HouseholdSummary {
	var out []model.HouseholdSummary
	for _, id := range s.order {
		rec := s.households[id]
		if slices.Contains(rec.members, userID) {
			out = append(out, rec.summary)
		}
	}
	slices.SortStableFunc(out, func(a, b model.HouseholdSummary) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

func (s *Store) membersOf(householdID string) []model.UserProfile {
	rec, ok := s.households[householdID]
	if !ok {
		return nil
	}
	out := make([]model.UserProfile, 0, len(rec.members))
	for _, uid := range rec.members {
		if p, ok := s.profiles[uid]; ok {
			out = append(out, p)
		}
	}
	slices.SortStableFunc(out, func(a, b model.UserProfile) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return out
}

// publishHouseholds pushes fresh lists to every observing user and member
// lists to every observed household.
func (s *Store) publishHouseholds() {
	for _, uid := range s.householdFeed.scopes() {
		s.mu.Lock()
		list := s.householdsFor(uid)
		s.mu.Unlock()
		s.householdFeed.publish(uid, list)
	}
	for _, hid := range s.memberFeed.scopes() {
		s.mu.Lock()
		list := s.membersOf(hid)
		s.mu.Unlock()
		s.memberFeed.publish(hid, list)
	}
}

func (s *Store) ObserveHouseholds(userID string, h service.Handler[[]model.HouseholdSummary]) listener.Token {
	tok := s.householdFeed.add(userID, h)
	s.mu.Lock()
	list := s.householdsFor(userID)
	s.mu.Unlock()
	h(list, nil)
	return tok
}

func (s *Store) CreateHousehold(_ context.Context, name, userID string) (model.HouseholdSummary, error) {
	s.mu.Lock()
	if err := s.takeFailure("CreateHousehold"); err != nil {
		s.mu.Unlock()
		return model.HouseholdSummary{}, err
	}
	sum := model.HouseholdSummary{ID: uuid.NewString(), Name: name, InviteCode: invite.NewCode()}
	s.households[sum.ID] = &householdRecord{summary: sum, members: []string{userID}}
	s.order = append(s.order, sum.ID)
	s.mu.Unlock()

	s.publishHouseholds()
	return sum, nil
}

func (s *Store) RenameHousehold(_ context.Context, householdID, name string) error {
	s.mu.Lock()
	if err := s.takeFailure("RenameHousehold"); err != nil {
		s.mu.Unlock()
		return err
	}
	rec, ok := s.households[householdID]
	if !ok {
		s.mu.Unlock()
		return apperror.NotFound("household", householdID)
	}
	rec.summary.Name = name
	s.mu.Unlock()

	s.publishHouseholds()
	return nil
}

func (s *Store) RefreshInviteCode(_ context.Context, householdID string) (string, error) {
	s.mu.Lock()
	if err := s.takeFailure("RefreshInviteCode"); err != nil {
		s.mu.Unlock()
		return "", err
	}
	rec, ok := s.households[householdID]
	if !ok {
		s.mu.Unlock()
		return "", apperror.NotFound("household", householdID)
	}
	code := invite.NewCode()
	rec.summary.InviteCode = code
	s.mu.Unlock()

	s.publishHouseholds()
	return code, nil
}

func (s *Store) JoinHousehold(_ context.Context, code, userID string) (model.HouseholdSummary, error) {
	s.mu.Lock()
	if err := s.takeFailure("JoinHousehold"); err != nil {
		s.mu.Unlock()
		return model.HouseholdSummary{}, err
	}
	var found *householdRecord
	for _, id := range s.order {
		if rec := s.households[id]; rec.summary.InviteCode == code {
			found = rec
			break
		}
	}
	if found == nil {
		s.mu.Unlock()
		return model.HouseholdSummary{}, apperror.NotFound("household", "invite code "+code)
	}
	if !slices.Contains(found.members, userID) {
		found.members = append(found.members, userID)
	}
	sum := found.summary
	s.mu.Unlock()

	s.publishHouseholds()
	return sum, nil
}

func (s *Store) LeaveHousehold(_ context.Context, householdID, userID string) error {
	s.mu.Lock()
	if err := s.takeFailure("LeaveHousehold"); err != nil {
		s.mu.Unlock()
		return err
	}
	rec, ok := s.households[householdID]
	if !ok {
		s.mu.Unlock()
		return apperror.NotFound("household", householdID)
	}
	rec.members = slices.DeleteFunc(rec.members, func(id string) bool { return id == userID })
	s.mu.Unlock()

	s.publishHouseholds()
	return nil
}

func (s *Store) DeleteHousehold(_ context.Context, householdID string) error {
	s.mu.Lock()
	if err := s.takeFailure("DeleteHousehold"); err != nil {
		s.mu.Unlock()
		return err
	}
	if _, ok := s.households[householdID]; !ok {
		s.mu.Unlock()
		return apperror.NotFound("household", householdID)
	}
	delete(s.households, householdID)
	s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == householdID })
	delete(s.tags, householdID)
	delete(s.templates, householdID)
	delete(s.tasks, householdID)
	delete(s.rewards, householdID)
	delete(s.redemptions, householdID)
	s.mu.Unlock()

	s.publishHouseholds()
	s.tagFeed.publish(householdID, nil)
	s.templateFeed.publish(householdID, nil)
	s.taskFeed.publish(householdID, nil)
	s.rewardFeed.publish(householdID, nil)
	s.redemptionFeed.publish(householdID, nil)
	return nil
}

// MembersOf returns the user ids in a household's membership set.
func (s *Store) MembersOf(householdID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.households[householdID]; ok {
		return slices.Clone(rec.members)
	}
	return nil
}

// Profiles

func (s *Store) FetchProfile(_ context.Context, userID string) (*model.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("FetchProfile"); err != nil {
		return nil, err
	}
	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *Store) SaveProfile(_ context.Context, p model.UserProfile) error {
	s.mu.Lock()
	if err := s.takeFailure("SaveProfile"); err != nil {
		s.mu.Unlock()
		return err
	}
	if p.ID == "" {
		s.mu.Unlock()
		return fmt.Errorf("save profile: missing user id")
	}
	s.profiles[p.ID] = p
	s.mu.Unlock()

	s.profileFeed.publish(p.ID, &p)
	s.publishHouseholds()
	return nil
}

func (s *Store) SetPoints(_ context.Context, userID string, points int) error {
	s.mu.Lock()
	if err := s.takeFailure("SetPoints"); err != nil {
		s.mu.Unlock()
		return err
	}
	p, ok := s.profiles[userID]
	if !ok {
		s.mu.Unlock()
		return apperror.NotFound("profile", userID)
	}
	if points > p.Points {
		p.LifetimePoints += points - p.Points
	}
	p.Points = points
	s.profiles[userID] = p
	s.mu.Unlock()

	s.profileFeed.publish(userID, &p)
	s.publishHouseholds()
	return nil
}

func (s *Store) ObserveProfile(userID string, h service.Handler[*model.UserProfile]) listener.Token {
	tok := s.profileFeed.add(userID, h)
	s.mu.Lock()
	var cur *model.UserProfile
	if p, ok := s.profiles[userID]; ok {
		cur = &p
	}
	s.mu.Unlock()
	h(cur, nil)
	return tok
}

func (s *Store) ObserveMembers(householdID string, h service.Handler[[]model.UserProfile]) listener.Token {
	tok := s.memberFeed.add(householdID, h)
	s.mu.Lock()
	list := s.membersOf(householdID)
	s.mu.Unlock()
	h(list, nil)
	return tok
}

// Tags

func tagID(t model.TagItem) string { return t.ID }

func (s *Store) tagSnapshot(householdID string) []model.TagItem {
	out := slices.Clone(s.tags[householdID])
	slices.SortStableFunc(out, func(a, b model.TagItem) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

func (s *Store) ObserveTags(householdID string, h service.Handler[[]model.TagItem]) listener.Token {
	tok := s.tagFeed.add(householdID, h)
	s.mu.Lock()
	list := s.tagSnapshot(householdID)
	s.mu.Unlock()
	h(list, nil)
	return tok
}

func (s *Store) CreateTag(_ context.Context, householdID string, tag model.TagItem) (model.TagItem, error) {
	s.mu.Lock()
	if err := s.takeFailure("CreateTag"); err != nil {
		s.mu.Unlock()
		return model.TagItem{}, err
	}
	if tag.ID == "" {
		tag.ID = uuid.NewString()
	}
	s.tags[householdID] = append(s.tags[householdID], tag)
	list := s.tagSnapshot(householdID)
	s.mu.Unlock()

	s.tagFeed.publish(householdID, list)
	return tag, nil
}

func (s *Store) UpdateTag(_ context.Context, householdID string, tag model.TagItem) error {
	s.mu.Lock()
	if err := s.takeFailure("UpdateTag"); err != nil {
		s.mu.Unlock()
		return err
	}
	i := indexByID(s.tags[householdID], tag.ID, tagID)
	if i < 0 {
		s.mu.Unlock()
		return apperror.NotFound("tag", tag.ID)
	}
	s.tags[householdID][i] = tag
	list := s.tagSnapshot(householdID)
	s.mu.Unlock()

	s.tagFeed.publish(householdID, list)
	return nil
}

func (s *Store) DeleteTag(_ context.Context, householdID, id string) error {
	s.mu.Lock()
	if err := s.takeFailure("DeleteTag"); err != nil {
		s.mu.Unlock()
		return err
	}
	s.tags[householdID] = slices.DeleteFunc(s.tags[householdID], func(t model.TagItem) bool { return t.ID == id })
	list := s.tagSnapshot(householdID)
	s.mu.Unlock()

	s.tagFeed.publish(householdID, list)
	return nil
}

// Templates

func templateID(t model.ChoreTemplate) string { return t.ID }

func (s *Store) templateSnapshot(householdID string) []model.ChoreTemplate {
	out := make([]model.ChoreTemplate, 0, len(s.templates[householdID]))
	for _, t := range s.templates[householdID] {
		t.Tags = slices.Clone(t.Tags)
		out = append(out, t)
	}
	slices.SortStableFunc(out, func(a, b model.ChoreTemplate) int {
		return strings.Compare(a.Title, b.Title)
	})
	return out
}

func (s *Store) ObserveTemplates(householdID string, h service.Handler[[]model.ChoreTemplate]) listener.Token {
	tok := s.templateFeed.add(householdID, h)
	s.mu.Lock()
	list := s.templateSnapshot(householdID)
	s.mu.Unlock()
	h(list, nil)
	return tok
}

func (s *Store) CreateTemplate(_ context.Context, householdID string, tmpl model.ChoreTemplate) (model.ChoreTemplate, error) {
	s.mu.Lock()
	if err := s.takeFailure("CreateTemplate"); err != nil {
		s.mu.Unlock()
		return model.ChoreTemplate{}, err
	}
	if tmpl.ID == "" {
		tmpl.ID = uuid.NewString()
	}
	s.templates[householdID] = append(s.templates[householdID], tmpl)
	list := s.templateSnapshot(householdID)
	s.mu.Unlock()

	s.templateFeed.publish(householdID, list)
	return tmpl, nil
}

func (s *Store) UpdateTemplate(_ context.Context, householdID string, tmpl model.ChoreTemplate) error {
	s.mu.Lock()
	if err := s.takeFailure("UpdateTemplate"); err != nil {
		s.mu.Unlock()
		return err
	}
	i := indexByID(s.templates[householdID], tmpl.ID, templateID)
	if i < 0 {
		s.mu.Unlock()
		return apperror.NotFound("template", tmpl.ID)
	}
	s.templates[householdID][i] = tmpl
	list := s.templateSnapshot(householdID)
	s.mu.Unlock()

	s.templateFeed.publish(householdID, list)
	return nil
}

func (s *Store) DeleteTemplate(_ context.Context, householdID, id string) error {
	s.mu.Lock()
	if err := s.takeFailure("DeleteTemplate"); err != nil {
		s.mu.Unlock()
		return err
	}
	s.templates[householdID] = slices.DeleteFunc(s.templates[householdID], func(t model.ChoreTemplate) bool { return t.ID == id })
	list := s.templateSnapshot(householdID)
	s.mu.Unlock()

	s.templateFeed.publish(householdID, list)
	return nil
}

// Tasks

func taskID(t model.TaskItem) string { return t.ID }

func (s *Store) taskSnapshot(householdID string) []model.TaskItem {
	out := make([]model.TaskItem, 0, len(s.tasks[householdID]))
	for _, t := range s.tasks[householdID] {
		out = append(out, t.Clone())
	}
	slices.SortStableFunc(out, func(a, b model.TaskItem) int {
		return a.DueDate.Compare(b.DueDate)
	})
	return out
}

func (s *Store) ObserveTasks(householdID string, h service.Handler[[]model.TaskItem]) listener.Token {
	tok := s.taskFeed.add(householdID, h)
	s.mu.Lock()
	list := s.taskSnapshot(householdID)
	s.mu.Unlock()
	h(list, nil)
	return tok
}

func (s *Store) CreateTask(_ context.Context, householdID string, task model.TaskItem) (model.TaskItem, error) {
	s.mu.Lock()
	if err := s.takeFailure("CreateTask"); err != nil {
		s.mu.Unlock()
		return model.TaskItem{}, err
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	s.tasks[householdID] = append(s.tasks[householdID], task.Clone())
	list := s.taskSnapshot(householdID)
	s.mu.Unlock()

	s.taskFeed.publish(householdID, list)
	return task, nil
}

func (s *Store) UpdateTask(_ context.Context, householdID, id string, patch model.TaskPatch) error {
	s.mu.Lock()
	if err := s.takeFailure("UpdateTask"); err != nil {
		s.mu.Unlock()
		return err
	}
	i := indexByID(s.tasks[householdID], id, taskID)
	if i < 0 {
		s.mu.Unlock()
		return apperror.NotFound("task", id)
	}
	s.tasks[householdID][i] = patch.Apply(s.tasks[householdID][i])
	list := s.taskSnapshot(householdID)
	s.mu.Unlock()

	s.taskFeed.publish(householdID, list)
	return nil
}

func (s *Store) DeleteTask(_ context.Context, householdID, id string) error {
	s.mu.Lock()
	if err := s.takeFailure("DeleteTask"); err != nil {
		s.mu.Unlock()
		return err
	}
	s.tasks[householdID] = slices.DeleteFunc(s.tasks[householdID], func(t model.TaskItem) bool { return t.ID == id })
	list := s.taskSnapshot(householdID)
	s.mu.Unlock()

	s.taskFeed.publish(householdID, list)
	return nil
}

// Rewards

func rewardID(r model.RewardItem) string { return r.ID }

func (s *Store) ObserveRewards(householdID string, h service.Handler[[]model.RewardItem]) listener.Token {
	tok := s.rewardFeed.add(householdID, h)
	s.mu.Lock()
	list := slices.Clone(s.rewards[householdID])
	s.mu.Unlock()
	h(list, nil)
	return tok
}

func (s *Store) CreateReward(_ context.Context, householdID string, r model.RewardItem) (model.RewardItem, error) {
	s.mu.Lock()
	if err := s.takeFailure("CreateReward"); err != nil {
		s.mu.Unlock()
		return model.RewardItem{}, err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	s.rewards[householdID] = append(s.rewards[householdID], r)
	list := slices.Clone(s.rewards[householdID])
	s.mu.Unlock()

	s.rewardFeed.publish(householdID, list)
	return r, nil
}

func (s *Store) UpdateReward(_ context.Context, householdID string, r model.RewardItem) error {
	s.mu.Lock()
	if err := s.takeFailure("UpdateReward"); err != nil {
		s.mu.Unlock()
		return err
	}
	i := indexByID(s.rewards[householdID], r.ID, rewardID)
	if i < 0 {
		s.mu.Unlock()
		return apperror.NotFound("reward", r.ID)
	}
	s.rewards[householdID][i] = r
	list := slices.Clone(s.rewards[householdID])
	s.mu.Unlock()

	s.rewardFeed.publish(householdID, list)
	return nil
}

func (s *Store) DeleteReward(_ context.Context, householdID, id string) error {
	s.mu.Lock()
	if err := s.takeFailure("DeleteReward"); err != nil {
		s.mu.Unlock()
		return err
	}
	s.rewards[householdID] = slices.DeleteFunc(s.rewards[householdID], func(r model.RewardItem) bool { return r.ID == id })
	list := slices.Clone(s.rewards[householdID])
	s.mu.Unlock()

	s.rewardFeed.publish(householdID, list)
	return nil
}

// Ledger

func (s *Store) redemptionSnapshot(householdID string) []model.RewardRedemption {
	out := slices.Clone(s.redemptions[householdID])
	slices.SortStableFunc(out, func(a, b model.RewardRedemption) int {
		return b.RedeemedAt.Compare(a.RedeemedAt)
	})
	return out
}

func (s *Store) ObserveRedemptions(householdID string, h service.Handler[[]model.RewardRedemption]) listener.Token {
	tok := s.redemptionFeed.add(householdID, h)
	s.mu.Lock()
	list := s.redemptionSnapshot(householdID)
	s.mu.Unlock()
	h(list, nil)
	return tok
}

func (s *Store) Redeem(_ context.Context, householdID string, r model.RewardRedemption) (model.RewardRedemption, error) {
	s.mu.Lock()
	if err := s.takeFailure("Redeem"); err != nil {
		s.mu.Unlock()
		return model.RewardRedemption{}, err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.RedeemedAt.IsZero() {
		r.RedeemedAt = s.Now()
	}
	s.redemptions[householdID] = append(s.redemptions[householdID], r)
	list := s.redemptionSnapshot(householdID)
	s.mu.Unlock()

	s.redemptionFeed.publish(householdID, list)
	return r, nil
}

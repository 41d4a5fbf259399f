package state

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/dukerupert/chorely/internal/listener"
	"github.com/dukerupert/chorely/internal/mainloop"
	"github.com/dukerupert/chorely/internal/model"
	"github.com/dukerupert/chorely/internal/observable"
	"github.com/dukerupert/chorely/internal/service"
)

// MemberDirectory lists the display identities of everyone in the selected
// household.
type MemberDirectory struct {
	list *scoped[model.HouseholdMember]
	errs *observable.Value[error]
}

func NewMemberDirectory(svc service.ProfileService, dispatch mainloop.Dispatcher, logger *slog.Logger) *MemberDirectory {
	observe := func(householdID string, h service.Handler[[]model.HouseholdMember]) listener.Token {
		return svc.ObserveMembers(householdID, func(profiles []model.UserProfile, err error) {
			if err != nil {
				h(nil, err)
				return
			}
			members := make([]model.HouseholdMember, 0, len(profiles))
			for _, p := range profiles {
				if p.MemberID == "" {
					continue
				}
				members = append(members, model.MemberFromProfile(p))
			}
			h(members, nil)
		})
	}

	errs := observable.NewValue[error](nil)
	return &MemberDirectory{
		errs: errs,
		list: newScoped(logger, dispatch, errs, observe, func(items []model.HouseholdMember) {
			slices.SortStableFunc(items, func(a, b model.HouseholdMember) int {
				return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
			})
		}),
	}
}

func (d *MemberDirectory) Bind(householdID string) { d.list.bind(householdID) }

func (d *MemberDirectory) Members() observable.Observable[Snapshot[model.HouseholdMember]] {
	return d.list.state
}

func (d *MemberDirectory) LastError() observable.Observable[error] { return d.errs }

// Lookup finds the directory entry matching m by id or name.
func (d *MemberDirectory) Lookup(m model.HouseholdMember) (model.HouseholdMember, bool) {
	return LookupMember(d.list.items(), m)
}

// LookupMember finds the entry of list matching m by id or name.
func LookupMember(list []model.HouseholdMember, m model.HouseholdMember) (model.HouseholdMember, bool) {
	for _, other := range list {
		if model.MatchMembers(other, m).Matched() {
			return other, true
		}
	}
	return model.HouseholdMember{}, false
}

// ByID returns the member with the given member id.
func (d *MemberDirectory) ByID(memberID string) (model.HouseholdMember, bool) {
	return findID(d.list.items(), memberID, func(m model.HouseholdMember) string { return m.ID })
}

func (d *MemberDirectory) Close() { d.list.close() }

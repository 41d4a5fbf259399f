package app

import (
	"github.com/dukerupert/chorely/internal/model"
	"github.com/dukerupert/chorely/internal/state"
	"github.com/dukerupert/chorely/internal/viewmodel"
	"github.com/dukerupert/chorely/internal/websocket"
)

// watch broadcasts a "<entity>_changed" message whenever a view model or a
// store the UI renders directly emits. The replay on subscribe happens before
// any client can connect and is skipped.
func (a *App) watch() {
	var ready bool
	notify := func(entity string) {
		if !ready {
			return
		}
		householdID := a.Households.CurrentID().Get()
		a.Hub.Broadcast(websocket.NewMessage(entity, "changed", "", nil).InHousehold(householdID))
	}

	a.tokens.Add(a.Presentation.State().Subscribe(func(viewmodel.Presentation) { notify("presentation") }))
	a.tokens.Add(a.Board.State().Subscribe(func(viewmodel.BoardState) { notify("board") }))
	a.tokens.Add(a.RewardsView.State().Subscribe(func(viewmodel.RewardsState) { notify("rewards") }))
	a.tokens.Add(a.RewardsView.Alert().Subscribe(func(*viewmodel.Alert) { notify("alert") }))
	a.tokens.Add(a.Households.Households().Subscribe(func(state.Snapshot[model.HouseholdSummary]) { notify("households") }))
	a.tokens.Add(a.Households.CurrentID().Subscribe(func(string) { notify("household") }))
	a.tokens.Add(a.Tags.Tags().Subscribe(func(state.Snapshot[model.TagItem]) { notify("tags") }))
	a.tokens.Add(a.Catalog.Templates().Subscribe(func(state.Snapshot[model.ChoreTemplate]) { notify("templates") }))
	a.tokens.Add(a.Members.Members().Subscribe(func(state.Snapshot[model.HouseholdMember]) { notify("members") }))
	a.tokens.Add(a.Auth.Profile().Subscribe(func(*model.UserProfile) { notify("profile") }))
	ready = true
}

package tui

import (
	"errors"
	"strings"
	"testing"

	"github.com/wesm/pushvault/internal/messages"
	"github.com/wesm/pushvault/internal/observe"
	"github.com/wesm/pushvault/internal/query"
	"github.com/wesm/pushvault/internal/store"
	"github.com/wesm/pushvault/internal/testutil"
)

func groupNames(groups []store.GroupSummary) []string {
	var names []string
	for _, g := range groups {
		names = append(names, g.Group)
	}
	return names
}

func messageIDs(msgs []store.Message) []string {
	var ids []string
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestInitLoadsGroupsAndCounts(t *testing.T) {
	m := newLoadedModel(t, sampleVault(), Options{})

	if m.loading {
		t.Error("still loading after Init")
	}
	testutil.AssertStrings(t, groupNames(m.groups), "Ops", "Chat")
	if m.counts != (query.Counts{Unread: 1, Total: 3}) {
		t.Errorf("counts = %+v", m.counts)
	}
}

func TestStaleGroupsResponseIgnored(t *testing.T) {
	m := New(sampleVault(), Options{})
	m.groupsRequestID = 5

	m = sendMsg(t, m, groupsLoadedMsg{
		groups:    []store.GroupSummary{{Message: testutil.NewMessage("x").Group("Stale").Build()}},
		requestID: 3,
	})
	if len(m.groups) != 0 {
		t.Errorf("stale response applied: %v", groupNames(m.groups))
	}

	m = sendMsg(t, m, groupsLoadedMsg{
		groups:    []store.GroupSummary{{Message: testutil.NewMessage("y").Group("Fresh").Build()}},
		requestID: 5,
	})
	testutil.AssertStrings(t, groupNames(m.groups), "Fresh")
}

func TestDrillIntoGroupAndBack(t *testing.T) {
	m := newLoadedModel(t, sampleVault(), Options{})

	m = press(t, m, keyDown, keyEnter)
	if m.level != levelMessages || m.group != "Chat" {
		t.Fatalf("level = %v group = %q, want the Chat message list", m.level, m.group)
	}
	testutil.AssertStrings(t, messageIDs(m.messages), "c1")

	m = press(t, m, keyEsc)
	if m.level != levelGroups {
		t.Fatalf("level = %v after esc, want groups", m.level)
	}
	if m.cursor != 1 {
		t.Errorf("cursor = %d after returning, want 1 (Chat)", m.cursor)
	}
}

func TestOpenMessageMarksItRead(t *testing.T) {
	v := sampleVault()
	m := newLoadedModel(t, v, Options{})

	m = press(t, m, keyEnter) // Ops
	testutil.AssertStrings(t, messageIDs(m.messages), "o2", "o1")

	m = press(t, m, keyDown, keyEnter)
	if m.level != levelDetail || m.detail == nil || m.detail.ID != "o1" {
		t.Fatalf("detail = %+v, want o1", m.detail)
	}
	if !m.detail.IsRead {
		t.Error("opened message still unread")
	}
	testutil.AssertStrings(t, v.markRead, "o1")
	if !m.messages[1].IsRead {
		t.Error("list row not updated after opening")
	}

	m = press(t, m, keyEsc)
	if m.level != levelMessages || m.cursor != 1 {
		t.Errorf("level = %v cursor = %d after leaving detail", m.level, m.cursor)
	}
}

func TestOpenVanishedMessage(t *testing.T) {
	v := sampleVault()
	m := newLoadedModel(t, v, Options{})
	m = press(t, m, keyEnter)

	// Another process deletes o2 before it is opened.
	if _, _, err := v.DeleteMessage(t.Context(), "o2"); err != nil {
		t.Fatal(err)
	}
	m = press(t, m, keyEnter)
	if m.level != levelMessages {
		t.Errorf("level = %v, want message list after the open failed", m.level)
	}
	if m.err == nil || !strings.Contains(m.err.Error(), "no longer exists") {
		t.Errorf("err = %v", m.err)
	}
}

func TestMarkGroupRead(t *testing.T) {
	v := sampleVault()
	m := newLoadedModel(t, v, Options{})

	m = press(t, m, keyRunes("r"))
	if m.counts.Unread != 0 {
		t.Errorf("unread = %d after marking Ops read", m.counts.Unread)
	}
	if !strings.Contains(m.flash, "1 message") {
		t.Errorf("flash = %q", m.flash)
	}
}

func TestDeleteGroupNeedsConfirmation(t *testing.T) {
	v := sampleVault()
	m := newLoadedModel(t, v, Options{})

	m = press(t, m, keyRunes("d"))
	if m.modal != modalDeleteConfirm || m.pendingDelete.group != "Ops" {
		t.Fatalf("modal = %v pending = %+v", m.modal, m.pendingDelete)
	}
	if view := stripANSI(m.View()); !strings.Contains(view, `"Ops"`) {
		t.Errorf("confirm dialog does not name the group:\n%s", view)
	}

	m = press(t, m, keyRunes("n"))
	if m.modal != modalNone || len(m.groups) != 2 {
		t.Fatalf("cancel: modal = %v groups = %v", m.modal, groupNames(m.groups))
	}

	m = press(t, m, keyRunes("d"), keyRunes("y"))
	testutil.AssertStrings(t, groupNames(m.groups), "Chat")
	if m.counts.Total != 1 {
		t.Errorf("total = %d after deleting Ops", m.counts.Total)
	}
}

func TestDeleteFromDetail(t *testing.T) {
	v := sampleVault()
	m := newLoadedModel(t, v, Options{})

	m = press(t, m, keyEnter, keyEnter, keyRunes("d"), keyRunes("y"))
	testutil.AssertStrings(t, v.deleted, "o2")
	if m.level != levelMessages {
		t.Errorf("level = %v, want message list after deleting the open message", m.level)
	}
	testutil.AssertStrings(t, messageIDs(m.messages), "o1")
}

func TestStoreChangedEventRefreshes(t *testing.T) {
	m := newLoadedModel(t, sampleVault(), Options{})
	m = press(t, m, keyDown) // cursor on Chat

	groups := []store.GroupSummary{
		{Message: testutil.NewMessage("n1").Group("New").Build(), UnreadCount: 4},
		{Message: testutil.NewMessage("c1").Group("Chat").Build()},
	}
	m = sendMsg(t, m, storeChangedMsg{event: observe.Event{
		Kind:   observe.GroupsChanged,
		Counts: query.Counts{Unread: 4, Total: 9},
		Groups: groups,
	}})

	testutil.AssertStrings(t, groupNames(m.groups), "New", "Chat")
	if m.cursor != 1 {
		t.Errorf("cursor = %d, want it to follow Chat to 1", m.cursor)
	}
	if m.counts.Total != 9 {
		t.Errorf("counts = %+v", m.counts)
	}

	// A counts-only event leaves the group list alone.
	m = sendMsg(t, m, storeChangedMsg{event: observe.Event{
		Kind:   observe.CountsChanged,
		Counts: query.Counts{Unread: 5, Total: 10},
	}})
	if m.counts.Unread != 5 || len(m.groups) != 2 {
		t.Errorf("after counts event: counts = %+v groups = %v", m.counts, groupNames(m.groups))
	}
}

func TestSearchFlow(t *testing.T) {
	s := newFakeSearcher()
	m := newLoadedModel(t, sampleVault(), Options{Searcher: s})

	m = press(t, m, keyRunes("/"))
	if !m.searchActive {
		t.Fatal("search bar not active after /")
	}
	m = press(t, m, keyRunes("d"), keyRunes("i"), keyRunes("s"), keyRunes("k"))

	if m.level != levelMessages || m.searchQuery != "disk" {
		t.Fatalf("level = %v query = %q", m.level, m.searchQuery)
	}
	var texts []string
	for _, o := range s.submitted {
		texts = append(texts, o.Text)
	}
	testutil.AssertStrings(t, texts, "d", "di", "dis", "disk")

	// A result for a superseded query is dropped.
	m = sendMsg(t, m, searchResultsMsg{result: messages.SearchResult{
		Options:  query.SearchOptions{Text: "dis"},
		Messages: []store.Message{testutil.NewMessage("stale").Build()},
		Total:    1,
	}})
	if len(m.messages) != 0 {
		t.Errorf("stale search result applied: %v", messageIDs(m.messages))
	}

	m = sendMsg(t, m, searchResultsMsg{result: messages.SearchResult{
		Options:  query.SearchOptions{Text: "disk"},
		Messages: []store.Message{testutil.NewMessage("o1").Group("Ops").Title("disk alert").Build()},
		Total:    1,
	}})
	testutil.AssertStrings(t, messageIDs(m.messages), "o1")

	m = press(t, m, keyEnter)
	if m.searchActive {
		t.Error("search bar still active after enter")
	}
	if footer := stripANSI(m.footerView()); !strings.Contains(footer, "1 of 1 matches") {
		t.Errorf("footer = %q", footer)
	}

	m = press(t, m, keyEsc)
	if m.level != levelGroups || m.searchQuery != "" {
		t.Errorf("after esc: level = %v query = %q", m.level, m.searchQuery)
	}
}

func TestSearchDisabledWithoutSearcher(t *testing.T) {
	m := newLoadedModel(t, sampleVault(), Options{})
	m = press(t, m, keyRunes("/"))
	if m.searchActive {
		t.Error("search opened without a searcher")
	}
}

func TestActionErrorShown(t *testing.T) {
	m := newLoadedModel(t, sampleVault(), Options{})
	m = sendMsg(t, m, actionDoneMsg{err: errors.New("database is locked")})
	if footer := stripANSI(m.footerView()); !strings.Contains(footer, "database is locked") {
		t.Errorf("footer = %q", footer)
	}
}

func TestViewRendersGroupsAndDetail(t *testing.T) {
	v := newFakeVault(
		testutil.NewMessage("m1").Group("Backups").Title("nightly ok").Body("line one\nline two").Level(2).TTL(3).Build(),
	)
	m := newLoadedModel(t, v, Options{})

	view := stripANSI(m.View())
	testutil.AssertContainsAll(t, view, "pushvault", "1 unread / 1 total", "Backups", "nightly ok")

	m = press(t, m, keyEnter, keyEnter)
	view = stripANSI(m.View())
	testutil.AssertContainsAll(t, view, "Groups › Backups › nightly ok", "Level:", "Expires:", "line two")
}

func TestDetailScrollIsClamped(t *testing.T) {
	body := strings.Repeat("line\n", 200)
	v := newFakeVault(testutil.NewMessage("long").Title("long").Body(body).Build())
	m := newLoadedModel(t, v, Options{})
	m = press(t, m, keyEnter, keyEnter)

	for range 500 {
		m = press(t, m, keyRunes("j"))
	}
	limit := len(m.detailLines()) - m.visibleRows()
	if m.detailScroll != limit {
		t.Errorf("detailScroll = %d, want %d", m.detailScroll, limit)
	}

	m = press(t, m, keyRunes("g"))
	if m.detailScroll != 0 {
		t.Errorf("detailScroll = %d after g, want 0", m.detailScroll)
	}
}

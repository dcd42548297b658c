// File: internal/selector/selector_test.go
package selector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/advbot/internal/adventure"
	"github.com/xkilldash9x/advbot/internal/memory"
	"go.uber.org/zap/zaptest"
)

type fakeMemory struct {
	match memory.Match
	ok    bool
	calls int
}

func (f *fakeMemory) BestMatch(string, []string) (memory.Match, bool) {
	f.calls++
	return f.match, f.ok
}

func button(label, id string, kind adventure.Kind, disabled bool) adventure.Button {
	return adventure.Button{Label: label, CustomID: id, Kind: kind, Disabled: disabled}
}

func choice(label string) adventure.Button {
	return button(label, "adv:"+label, adventure.KindGeneric, false)
}

func newSelector(t *testing.T, mem MemoryReader) *Selector {
	t.Helper()
	return New(DefaultRulebook(), mem, zaptest.NewLogger(t))
}

func TestScanOverLand(t *testing.T) {
	s := newSelector(t, &fakeMemory{})
	text := adventure.Text{Content: "You encounter a toxic, radioactive planet"}

	d, ok := s.Select([]adventure.Button{choice("Land"), choice("Scan")}, text, false)
	require.True(t, ok)
	assert.Equal(t, "Scan", d.Button.Label)
	assert.Equal(t, ReasonScenario, d.Reason)
	assert.Equal(t, "dangerous_planet", d.Scenario)
	assert.Equal(t, 9.0, d.Score)
	assert.Equal(t, "planet_radioactive_toxic", d.Fingerprint)

	var planet *Scenario
	for i := range s.rules.Scenarios {
		if s.rules.Scenarios[i].Name == "dangerous_planet" {
			planet = &s.rules.Scenarios[i]
		}
	}
	require.NotNil(t, planet)
	assert.Equal(t, 2, s.scoreLabel(*planet, "Land"))
}

func TestNavigationPriority(t *testing.T) {
	mem := &fakeMemory{match: memory.Match{Label: "Talk", Score: 500}, ok: true}
	s := newSelector(t, mem)
	text := adventure.Text{Content: "An alien approaches. What do you do?"}
	nav := button(">", "adventure-next:1", adventure.KindNavigation, false)

	for _, navOnly := range []bool{false, true} {
		d, ok := s.Select([]adventure.Button{choice("Talk"), choice("Attack"), nav}, text, navOnly)
		require.True(t, ok)
		assert.Equal(t, nav.CustomID, d.Button.CustomID)
		assert.Equal(t, ReasonNavigation, d.Reason)
	}
	assert.Zero(t, mem.calls, "memory is not consulted when navigation is live")
}

func TestNavigationOnlyWithoutNavigation(t *testing.T) {
	s := newSelector(t, nil)
	_, ok := s.Select([]adventure.Button{choice("Talk")}, adventure.Text{Content: "alien"}, true)
	assert.False(t, ok)
}

func TestInventoryAndDisabledNavigationYieldNothing(t *testing.T) {
	s := newSelector(t, &fakeMemory{})
	buttons := []adventure.Button{
		button("Backpack", "adventure-backpackitem:1", adventure.KindInventory, false),
		button(">", "adventure-next:1", adventure.KindNavigation, true),
	}
	_, ok := s.Select(buttons, adventure.Text{Content: "You passed a star"}, false)
	assert.False(t, ok)
}

func TestMemoryBeatsScenario(t *testing.T) {
	mem := &fakeMemory{match: memory.Match{Label: "Land", Remembered: "land", Score: 150}, ok: true}
	s := newSelector(t, mem)
	d, ok := s.Select([]adventure.Button{choice("Scan"), choice("Land")}, adventure.Text{Content: "a toxic planet"}, false)
	require.True(t, ok)
	assert.Equal(t, "Land", d.Button.Label)
	assert.Equal(t, ReasonMemory, d.Reason)
	assert.Equal(t, 150.0, d.Score)
}

func TestMemoryWithRealStore(t *testing.T) {
	backend, err := memory.NewFileBackend(filepath.Join(t.TempDir(), "m.json"))
	require.NoError(t, err)
	store := memory.NewStore(backend, zaptest.NewLogger(t))
	require.NoError(t, store.Load(t.Context()))

	text := adventure.Text{Content: "a toxic planet"}
	fp := adventure.Fingerprint(text)
	require.NoError(t, store.Record(t.Context(), fp, "Explore", true))

	s := newSelector(t, store)
	d, ok := s.Select([]adventure.Button{choice("Scan"), choice("Explore the surface")}, text, false)
	require.True(t, ok)
	assert.Equal(t, "Explore the surface", d.Button.Label)
	assert.Equal(t, ReasonMemory, d.Reason)
}

func TestScenarioTiesKeepOrder(t *testing.T) {
	s := newSelector(t, nil)
	d, ok := s.Select([]adventure.Button{choice("Wave"), choice("Nod")}, adventure.Text{Content: "the alien stares"}, false)
	require.True(t, ok)
	assert.Equal(t, "Wave", d.Button.Label)
	assert.Equal(t, 5.0, d.Score)
}

func TestScenarioOrderFirstMatchWins(t *testing.T) {
	s := newSelector(t, nil)
	// The kitchen and odd eyes scenarios also match but come later in the table.
	d, ok := s.Select([]adventure.Button{choice("Inspect"), choice("Flee")}, adventure.Text{Content: "an alien with odd eyes in the kitchen"}, false)
	require.True(t, ok)
	assert.Equal(t, "alien", d.Scenario)
	assert.Equal(t, "Inspect", d.Button.Label)
}

func TestFallbacks(t *testing.T) {
	s := newSelector(t, nil)
	text := adventure.Text{Content: "a quiet moment"}

	d, ok := s.Select([]adventure.Button{choice("Refuse"), choice("Accept offer")}, text, false)
	require.True(t, ok)
	assert.Equal(t, "Accept offer", d.Button.Label)
	assert.Equal(t, ReasonHeuristic, d.Reason)

	d, ok = s.Select([]adventure.Button{choice("Refuse"), choice("Whistle")}, text, false)
	require.True(t, ok)
	assert.Equal(t, "Whistle", d.Button.Label)
	assert.Equal(t, ReasonSafe, d.Reason)

	d, ok = s.Select([]adventure.Button{choice("Refuse"), choice("Ignore")}, text, false)
	require.True(t, ok)
	assert.Equal(t, "Refuse", d.Button.Label)
	assert.Equal(t, ReasonFallback, d.Reason)
}

func TestLoadRulebook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scenarios:
  - name: Meteor
    keywords: [METEOR]
    preferred: {Dodge: 12}
    avoided: {Catch: 1}
baseline_score: 4
`), 0o644))

	rb, err := LoadRulebook(path)
	require.NoError(t, err)
	require.Len(t, rb.Scenarios, 1)
	assert.Equal(t, []string{"meteor"}, rb.Scenarios[0].Keywords)
	assert.Equal(t, 12, rb.Scenarios[0].Preferred["dodge"])
	assert.Equal(t, 4, rb.BaselineScore)
	assert.Equal(t, DefaultRulebook().GoodKeywords, rb.GoodKeywords)

	s := New(rb, nil, zaptest.NewLogger(t))
	d, ok := s.Select([]adventure.Button{choice("Catch it"), choice("Dodge")}, adventure.Text{Content: "A meteor!"}, false)
	require.True(t, ok)
	assert.Equal(t, "Dodge", d.Button.Label)

	t.Run("invalid", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("scenarios:\n  - name: x\n"), 0o644))
		_, err := LoadRulebook(bad)
		assert.ErrorContains(t, err, "has no keywords")
	})

	t.Run("missing", func(t *testing.T) {
		_, err := LoadRulebook(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestDefaultRulebookValid(t *testing.T) {
	assert.NoError(t, DefaultRulebook().Validate())
}

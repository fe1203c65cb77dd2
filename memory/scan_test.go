package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nabiya/diarymem/core"
	"github.com/nabiya/diarymem/memory"
	"github.com/nabiya/diarymem/memory/embedder/mock"
)

func TestEntriesInWindow_Inclusive(t *testing.T) {
	s, _ := openStore(t, mock.New())
	ctx := context.Background()

	for _, e := range []struct{ text, date string }{
		{"seven days before", "2024-03-03"},
		{"six days before", "2024-03-04"},
		{"on the day", "2024-03-10"},
		{"the day after", "2024-03-11"},
	} {
		_, err := s.IndexEntry(ctx, "u1", e.text, dated(e.date))
		require.NoError(t, err)
	}

	got, err := s.EntriesInWindow(ctx, "u1", "2024-03-10", 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"six days before", "on the day"}, contents(got))
}

func TestEntriesInWindow_FamilyLunchScenario(t *testing.T) {
	s, _ := openStore(t, mock.New())
	ctx := context.Background()

	_, err := s.IndexEntry(ctx, "u1", "family lunch", dated("2024-03-01"))
	require.NoError(t, err)
	_, err = s.IndexEntry(ctx, "u1", "family lunch again, dad's birthday", dated("2024-03-09"))
	require.NoError(t, err)

	for _, ref := range []string{"2024-03-10", "2024-03-09"} {
		got, err := s.EntriesInWindow(ctx, "u1", ref, 7)
		require.NoError(t, err)
		assert.Equal(t, []string{"family lunch again, dad's birthday"}, contents(got), ref)
	}
}

func TestEntriesInWindow_SortedByDateThenInsertion(t *testing.T) {
	s, _ := openStore(t, mock.New())
	ctx := context.Background()

	_, err := s.IndexEntries(ctx, "u1", []memory.Entry{
		{Text: "late", Metadata: dated("2024-03-09")},
		{Text: "early", Metadata: dated("2024-03-05")},
		{Text: "late again", Metadata: dated("2024-03-09")},
	})
	require.NoError(t, err)

	got, err := s.EntriesInWindow(ctx, "u1", "2024-03-10", 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"early", "late", "late again"}, contents(got))
}

func TestEntriesInWindow_TenantScoped(t *testing.T) {
	s, _ := openStore(t, mock.New())
	ctx := context.Background()

	_, err := s.IndexEntry(ctx, "u2", "not mine", dated("2024-03-10"))
	require.NoError(t, err)

	got, err := s.EntriesInWindow(ctx, "u1", "2024-03-10", 7)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEntriesInWindow_Errors(t *testing.T) {
	s, _ := openStore(t, mock.New())
	ctx := context.Background()

	_, err := s.EntriesInWindow(ctx, "u1", "10/03/2024", 7)
	assert.ErrorIs(t, err, core.ErrInvalidDate)

	_, err = s.EntriesInWindow(ctx, "u1", "2024-02-30", 7)
	assert.ErrorIs(t, err, core.ErrInvalidDate)

	_, err = s.EntriesInWindow(ctx, "u1", "2024-03-10", 0)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = s.IndexEntry(ctx, "u1", "something", dated("2024-03-10"))
	require.NoError(t, err)
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.EntriesInWindow(cancelled, "u1", "2024-03-10", 7)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListAllEntries(t *testing.T) {
	s, _ := openStore(t, mock.New())
	ctx := context.Background()

	_, err := s.IndexEntry(ctx, "u1", "one", nil)
	require.NoError(t, err)
	_, err = s.IndexEntry(ctx, "u2", "other", nil)
	require.NoError(t, err)
	_, err = s.IndexEntry(ctx, "u1", "two", nil)
	require.NoError(t, err)

	got, err := s.ListAllEntries(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, contents(got))

	none, err := s.ListAllEntries(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestThemeCounts(t *testing.T) {
	s, _ := openStore(t, mock.New())
	ctx := context.Background()

	theme := func(name string) core.Metadata {
		return core.Metadata{core.MetaKind: string(core.KindTheme), core.MetaTheme: name}
	}
	_, err := s.IndexEntries(ctx, "u1", []memory.Entry{
		{Text: "a", Metadata: theme("school days")},
		{Text: "b", Metadata: theme("military service")},
		{Text: "c", Metadata: theme("school days")},
		{Text: "d", Metadata: core.Metadata{core.MetaDailyDiary: "daily_diary"}},
		// Legacy theme records without a kind still count.
		{Text: "e", Metadata: core.Metadata{core.MetaTheme: "first job"}},
	})
	require.NoError(t, err)

	got, err := s.ThemeCounts(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []memory.ThemeCount{
		{Theme: "school days", Count: 2},
		{Theme: "first job", Count: 1},
		{Theme: "military service", Count: 1},
	}, got)
}

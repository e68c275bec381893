package storage

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(":memory:")
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func strPtr(s string) *string { return &s }

func TestNewRepository_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data.db")
	repo, err := NewRepository(path)
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	ctx := context.Background()
	if err := repo.Put(ctx, "k", "v"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := repo.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	_ = repo.Close()

	reopened, err := NewRepository(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if got, _ := reopened.GetString(ctx, "k"); got != "v" {
		t.Fatalf("value after reopen=%q", got)
	}
}

func TestNewRepository_EmptyPath(t *testing.T) {
	if _, err := NewRepository(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestKV(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("Get(missing) err=%v", err)
	}
	if v, err := repo.GetString(ctx, "missing"); err != nil || v != "" {
		t.Fatalf("GetString(missing)=%q,%v", v, err)
	}

	if err := repo.Put(ctx, "a", "1"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := repo.Put(ctx, "a", "2"); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	if v, _ := repo.Get(ctx, "a"); v != "2" {
		t.Fatalf("Get(a)=%q", v)
	}

	if err := repo.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := repo.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete twice: %v", err)
	}
	if _, err := repo.Get(ctx, "a"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("deleted key still readable: %v", err)
	}
}

func TestList_Paging(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	for _, k := range []string{"sub3_CONFIG", "sub1_CONFIG", "sub2_LINK.txt", "MAIN_CONFIG", "su"} {
		if err := repo.Put(ctx, k, "x"); err != nil {
			t.Fatalf("Put(%s): %v", k, err)
		}
	}

	first, err := repo.List(ctx, "sub", "", 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if first.Complete || !reflect.DeepEqual(first.Keys, []string{"sub1_CONFIG", "sub2_LINK.txt"}) {
		t.Fatalf("first page=%+v", first)
	}

	second, err := repo.List(ctx, "sub", first.Cursor, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !second.Complete || !reflect.DeepEqual(second.Keys, []string{"sub3_CONFIG"}) {
		t.Fatalf("second page=%+v", second)
	}
}

func TestNormalizeSubID(t *testing.T) {
	cases := map[string]string{
		"sub1":    "sub1",
		" sub12 ": "sub12",
		"main":    "",
		"sub":     "",
		"sub1a":   "",
		"SUB1":    "",
	}
	for in, want := range cases {
		got, ok := NormalizeSubID(in)
		if got != want || ok != (want != "") {
			t.Errorf("NormalizeSubID(%q)=(%q,%v), want=%q", in, got, ok, want)
		}
	}
}

func TestSortSubIDs(t *testing.T) {
	got := SortSubIDs([]string{"sub10", "sub2", "sub1", "sub02"})
	want := []string{"sub1", "sub02", "sub2", "sub10"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SortSubIDs()=%q, want=%q", got, want)
	}
}

func TestKeys(t *testing.T) {
	if ConfigKey(MainID) != "MAIN_CONFIG" || ConfigKey("sub3") != "sub3_CONFIG" {
		t.Fatalf("config keys wrong")
	}
	if LinkKey(MainID) != "LINK.txt" || LinkKey("sub3") != "sub3_LINK.txt" {
		t.Fatalf("link keys wrong")
	}
}

func TestListSubs_FromList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	if err := repo.Put(ctx, subsListKey, `["sub3"," sub1 ","bad",7,"sub3"]`); err != nil {
		t.Fatal(err)
	}
	got, err := repo.ListSubs(ctx)
	if err != nil {
		t.Fatalf("ListSubs: %v", err)
	}
	if want := []string{"sub1", "sub3"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("ListSubs()=%q, want=%q", got, want)
	}
}

func TestListSubs_ScanFallback(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	for _, k := range []string{"sub2_LINK.txt", "sub10_CONFIG", "sub2_CONFIG", "sub4_ADD.txt", "LINK.txt"} {
		if err := repo.Put(ctx, k, "x"); err != nil {
			t.Fatal(err)
		}
	}
	if err := repo.Put(ctx, subsListKey, "not json"); err != nil {
		t.Fatal(err)
	}
	got, err := repo.ListSubs(ctx)
	if err != nil {
		t.Fatalf("ListSubs: %v", err)
	}
	if want := []string{"sub2", "sub10"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("ListSubs()=%q, want=%q", got, want)
	}
}

func TestReadSubMeta_Defaults(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	main, err := repo.ReadSubMeta(ctx, MainID, "CF-Workers-SUB")
	if err != nil {
		t.Fatalf("ReadSubMeta(main): %v", err)
	}
	if main != (SubMeta{ID: MainID, DisplayName: "CF-Workers-SUB", FileName: "CF-Workers-SUB"}) {
		t.Fatalf("main meta=%+v", main)
	}

	sub, err := repo.ReadSubMeta(ctx, "sub2", "CF-Workers-SUB")
	if err != nil {
		t.Fatalf("ReadSubMeta(sub2): %v", err)
	}
	if sub.FileName != "CF-Workers-SUB-sub2" || sub.DisplayName != "CF-Workers-SUB-sub2" {
		t.Fatalf("sub meta=%+v", sub)
	}

	if _, err := repo.ReadSubMeta(ctx, "nope", "x"); !errors.Is(err, ErrInvalidSubID) {
		t.Fatalf("expected ErrInvalidSubID, got %v", err)
	}
}

func TestUpsertSubMeta(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.UpsertSubMeta(ctx, "sub2", strPtr("  家庭  "), nil, "T"); err != nil {
		t.Fatalf("UpsertSubMeta: %v", err)
	}
	if err := repo.UpsertSubMeta(ctx, "sub1", nil, strPtr("work"), "T"); err != nil {
		t.Fatalf("UpsertSubMeta: %v", err)
	}
	if err := repo.UpsertSubMeta(ctx, MainID, strPtr("主"), nil, "T"); err != nil {
		t.Fatalf("UpsertSubMeta(main): %v", err)
	}

	got, _ := repo.ReadSubMeta(ctx, "sub2", "T")
	if got.DisplayName != "家庭" || got.FileName != "T-sub2" {
		t.Fatalf("sub2 meta=%+v", got)
	}
	got, _ = repo.ReadSubMeta(ctx, "sub1", "T")
	if got.DisplayName != "work" || got.FileName != "work" {
		t.Fatalf("sub1 meta=%+v", got)
	}

	ids, err := repo.ListSubs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"sub1", "sub2"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("ListSubs()=%q, want=%q", ids, want)
	}

	metas, err := repo.HydrateSubsMeta(ctx, append(ids, "bogus"), "T")
	if err != nil || len(metas) != 2 {
		t.Fatalf("HydrateSubsMeta()=%+v,%v", metas, err)
	}

	if err := repo.UpsertSubMeta(ctx, "x1", nil, nil, "T"); !errors.Is(err, ErrInvalidSubID) {
		t.Fatalf("expected ErrInvalidSubID, got %v", err)
	}
}

func TestSaveSubMetaKeepsExistingFields(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.SaveSubMeta(ctx, "sub1", "显示", "file"); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveSubMeta(ctx, "sub1", "", "file2"); err != nil {
		t.Fatal(err)
	}
	cfg, ok, err := repo.ReadSubConfig(ctx, "sub1")
	if err != nil || !ok {
		t.Fatalf("ReadSubConfig()=%v,%v", ok, err)
	}
	if cfg.DisplayName != "显示" || cfg.FileName != "file2" {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestSaveSubConfig(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.SaveSubConfig(ctx, MainID, strPtr("https://ip.example.com"), nil); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveSubConfig(ctx, MainID, nil, strPtr("")); err != nil {
		t.Fatal(err)
	}
	cfg, _, _ := repo.ReadSubConfig(ctx, MainID)
	if cfg.BestIPURL == nil || *cfg.BestIPURL != "https://ip.example.com" {
		t.Fatalf("bestIPUrl=%v", cfg.BestIPURL)
	}
	if cfg.CustomHosts == nil || *cfg.CustomHosts != "" {
		t.Fatalf("customHosts=%v", cfg.CustomHosts)
	}
}

func TestReadSubConfig_Corrupt(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	if err := repo.Put(ctx, "sub1_CONFIG", "{broken"); err != nil {
		t.Fatal(err)
	}
	cfg, ok, err := repo.ReadSubConfig(ctx, "sub1")
	if err != nil || ok || cfg != (SubConfig{}) {
		t.Fatalf("ReadSubConfig()=%+v,%v,%v", cfg, ok, err)
	}
}

func TestDeleteSub(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, id := range []string{"sub1", "sub2"} {
		if err := repo.UpsertSubMeta(ctx, id, nil, nil, "T"); err != nil {
			t.Fatal(err)
		}
		if err := repo.SaveLinks(ctx, id, "vless://a@h:1#"+id); err != nil {
			t.Fatal(err)
		}
	}

	if err := repo.DeleteSub(ctx, "sub1"); err != nil {
		t.Fatalf("DeleteSub: %v", err)
	}
	if links, _ := repo.ReadLinks(ctx, "sub1"); links != "" {
		t.Fatalf("links not removed: %q", links)
	}
	if _, ok, _ := repo.ReadSubConfig(ctx, "sub1"); ok {
		t.Fatalf("config not removed")
	}
	ids, _ := repo.ListSubs(ctx)
	if !reflect.DeepEqual(ids, []string{"sub2"}) {
		t.Fatalf("ListSubs()=%q", ids)
	}

	if err := repo.DeleteSub(ctx, MainID); !errors.Is(err, ErrProtectedSub) {
		t.Fatalf("expected ErrProtectedSub, got %v", err)
	}
	if err := repo.DeleteSub(ctx, ""); !errors.Is(err, ErrProtectedSub) {
		t.Fatalf("expected ErrProtectedSub, got %v", err)
	}
	if err := repo.DeleteSub(ctx, "abc"); !errors.Is(err, ErrInvalidSubID) {
		t.Fatalf("expected ErrInvalidSubID, got %v", err)
	}
}

func TestMigrateAddressList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.Put(ctx, "ADD.txt", "old-main"); err != nil {
		t.Fatal(err)
	}
	if err := repo.Put(ctx, "sub1_ADD.txt", "old-sub1"); err != nil {
		t.Fatal(err)
	}
	if err := repo.Put(ctx, "sub2_ADD.txt", "old-sub2"); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveLinks(ctx, "sub2", "current"); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		key      string
		migrated bool
		want     string
		oldKey   string
		oldKept  bool
	}{
		{"LINK.txt", true, "old-main", "ADD.txt", false},
		{"sub1_LINK.txt", true, "old-sub1", "sub1_ADD.txt", false},
		{"sub2_LINK.txt", false, "current", "sub2_ADD.txt", true},
		{"sub3_LINK.txt", false, "", "sub3_ADD.txt", false},
	}
	for _, tt := range cases {
		migrated, err := repo.MigrateAddressList(ctx, tt.key)
		if err != nil {
			t.Fatalf("MigrateAddressList(%s): %v", tt.key, err)
		}
		if migrated != tt.migrated {
			t.Errorf("MigrateAddressList(%s)=%v, want=%v", tt.key, migrated, tt.migrated)
		}
		if v, _ := repo.GetString(ctx, tt.key); v != tt.want {
			t.Errorf("%s=%q, want=%q", tt.key, v, tt.want)
		}
		if _, err := repo.Get(ctx, tt.oldKey); (err == nil) != tt.oldKept {
			t.Errorf("%s kept=%v, want=%v", tt.oldKey, err == nil, tt.oldKept)
		}
	}

	if migrated, _ := repo.MigrateAddressList(ctx, "OTHER"); migrated {
		t.Fatalf("key without LINK must not migrate")
	}
}

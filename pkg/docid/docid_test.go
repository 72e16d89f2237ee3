package docid

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	apierrors "igcrawler/pkg/errors"
	"igcrawler/pkg/logger"
	"igcrawler/pkg/models"
)

func TestExtractCandidates(t *testing.T) {
	source := `
		{"doc_id":"24059491867034637"}
		doc_id: '9814547265267853'
		queryID="24312092678414792"
		"99887766554433221"
		"short":"12345"
	`
	candidates := extractCandidates(source)
	if len(candidates) != 4 {
		t.Fatalf("expected 4 candidates, got %d: %v", len(candidates), candidates)
	}
	if candidates[0] != "24059491867034637" {
		t.Errorf("first candidate = %q", candidates[0])
	}
	for _, c := range candidates {
		if c == "12345" {
			t.Error("short numeric token should not match")
		}
	}
}

func TestExtractCandidatesDeduplicates(t *testing.T) {
	source := `"doc_id":"24059491867034637" "doc_id":"24059491867034637"`
	if got := len(extractCandidates(source)); got != 1 {
		t.Errorf("expected 1 unique candidate, got %d", got)
	}
}

func TestExtractCandidatesLongestFirst(t *testing.T) {
	source := `"doc_id":"123456789012345" "doc_id":"1234567890123456789"`
	candidates := extractCandidates(source)
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	if candidates[0] != "1234567890123456789" {
		t.Errorf("expected longest candidate first, got %q", candidates[0])
	}
}

func TestExtractCandidatesLongestFirstAcrossPatterns(t *testing.T) {
	// The doc_id-keyed token matches an earlier pattern, but the longer
	// bare literal must still rank first.
	source := `"doc_id":"123456789012345" "12345678901234567890123"`
	candidates := extractCandidates(source)
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d: %v", len(candidates), candidates)
	}
	if candidates[0] != "12345678901234567890123" {
		t.Errorf("expected longest candidate first, got %q", candidates[0])
	}
}

func TestExtractScriptURLs(t *testing.T) {
	source := `<html>
		<script src="https://static.cdn/bundle-a.js?v=1"></script>
		<script src="https://static.cdn/bundle-b.js"></script>
		<script>inline</script>
	</html>`
	urls := extractScriptURLs(source)
	if len(urls) != 2 {
		t.Fatalf("expected 2 script urls, got %d: %v", len(urls), urls)
	}
}

func TestRegistrySaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc_ids.json")
	doc := &Document{
		DiscoveredAt: time.Now().UTC().Truncate(time.Second),
		ValidDocIDs:  []string{"24059491867034637", "9814547265267853"},
		Recommended:  "24059491867034637",
	}
	if err := Save(path, doc); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Recommended != doc.Recommended {
		t.Errorf("Recommended = %q", loaded.Recommended)
	}
	if len(loaded.ValidDocIDs) != 2 {
		t.Errorf("ValidDocIDs = %v", loaded.ValidDocIDs)
	}
	if !loaded.DiscoveredAt.Equal(doc.DiscoveredAt) {
		t.Errorf("DiscoveredAt = %v, want %v", loaded.DiscoveredAt, doc.DiscoveredAt)
	}
}

func TestRegistryLoadMissingFile(t *testing.T) {
	doc, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load of missing file should not error: %v", err)
	}
	if doc != nil {
		t.Error("expected nil document for missing file")
	}
}

func TestRegistrySaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc_ids.json")
	if err := Save(path, &Document{Recommended: "24059491867034637"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the registry file, found %d entries", len(entries))
	}
}

// fakeSource scripts the pages and probe verdicts a Finder sees.
type fakeSource struct {
	pages    map[string]string
	probes   map[string]models.ProbeResult
	probeErr map[string]error
	probed   []string
}

func (f *fakeSource) FetchSource(ctx context.Context, url string) (string, error) {
	text, ok := f.pages[url]
	if !ok {
		return "", apierrors.New(apierrors.ErrorTypeNotFound, "no such page", 404)
	}
	return text, nil
}

func (f *fakeSource) Probe(ctx context.Context, docID, probeUserID string) (models.ProbeResult, error) {
	f.probed = append(f.probed, docID)
	if err, ok := f.probeErr[docID]; ok {
		return models.ProbeResult{}, err
	}
	return f.probes[docID], nil
}

func newTestFinder(src *fakeSource) *Finder {
	f := NewFinder(src, "1552043361", 800*time.Millisecond, 50, logger.NopLogger{})
	f.wait = func(ctx context.Context, d time.Duration) error { return nil }
	return f
}

func TestCollectScansPagesAndBundles(t *testing.T) {
	src := &fakeSource{
		pages: map[string]string{
			"/":                            `<script src="https://static.cdn/bundle.js"></script> "doc_id":"111111111111111111"`,
			"https://static.cdn/bundle.js": `"doc_id":"222222222222222222"`,
		},
	}
	finder := newTestFinder(src)

	candidates, err := finder.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %v", candidates)
	}
}

func TestCollectOrdersUnionLongestFirst(t *testing.T) {
	src := &fakeSource{
		pages: map[string]string{
			"/":                            `<script src="https://static.cdn/bundle.js"></script> "doc_id":"111111111111111"`,
			"https://static.cdn/bundle.js": `"doc_id":"22222222222222222222222"`,
		},
	}
	finder := newTestFinder(src)

	candidates, err := finder.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %v", candidates)
	}
	if candidates[0] != "22222222222222222222222" {
		t.Errorf("expected the longest id across sources first, got %q", candidates[0])
	}
}

func TestCollectSurvivesFailedPages(t *testing.T) {
	src := &fakeSource{
		pages: map[string]string{
			"/instagram/": `"doc_id":"111111111111111111"`,
		},
	}
	finder := newTestFinder(src)

	candidates, err := finder.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %v", candidates)
	}
}

func TestValidatePicksFirstValidAsRecommended(t *testing.T) {
	src := &fakeSource{
		probes: map[string]models.ProbeResult{
			"111111111111111111": {Status: 404, Body: `{"errors":[{"message":"query was not found"}]}`},
			"222222222222222222": {Status: 200, Body: `{"data":{"user":{"username":"probe"}}}`},
			"333333333333333333": {Status: 200, Body: `{"data":{"user":{"username":"probe"}}}`},
		},
	}
	finder := newTestFinder(src)

	doc, err := finder.Validate(context.Background(),
		[]string{"111111111111111111", "222222222222222222", "333333333333333333"})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if doc.Recommended != "222222222222222222" {
		t.Errorf("Recommended = %q", doc.Recommended)
	}
	if len(doc.ValidDocIDs) != 2 {
		t.Errorf("ValidDocIDs = %v", doc.ValidDocIDs)
	}
}

func TestValidateRateLimitedProbeIsUnconfirmed(t *testing.T) {
	src := &fakeSource{
		probes: map[string]models.ProbeResult{
			"222222222222222222": {Status: 200, Body: `{"data":{"user":{"username":"probe"}}}`},
		},
		probeErr: map[string]error{
			"111111111111111111": apierrors.New(apierrors.ErrorTypeRateLimit, "rate limit exceeded", 429),
		},
	}
	finder := newTestFinder(src)

	doc, err := finder.Validate(context.Background(),
		[]string{"111111111111111111", "222222222222222222"})
	if err != nil {
		t.Fatalf("a single rate-limited probe must not abort the run: %v", err)
	}
	if len(src.probed) != 2 {
		t.Errorf("expected both candidates probed, got %v", src.probed)
	}
	if doc.Recommended != "222222222222222222" {
		t.Errorf("Recommended = %q", doc.Recommended)
	}
	if len(doc.ValidDocIDs) != 1 {
		t.Errorf("ValidDocIDs = %v, rate-limited candidate must stay unconfirmed", doc.ValidDocIDs)
	}
}

func TestValidateAbortsAfterRepeatedRateLimits(t *testing.T) {
	rlErr := apierrors.New(apierrors.ErrorTypeRateLimit, "rate limit exceeded", 429)
	src := &fakeSource{
		probeErr: map[string]error{
			"111111111111111111": rlErr,
			"222222222222222222": rlErr,
			"333333333333333333": rlErr,
			"444444444444444444": rlErr,
		},
	}
	finder := newTestFinder(src)

	_, err := finder.Validate(context.Background(),
		[]string{"111111111111111111", "222222222222222222", "333333333333333333", "444444444444444444"})
	if !apierrors.IsRateLimit(err) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if len(src.probed) != maxConsecutiveRateLimits {
		t.Errorf("expected validation to stop after %d consecutive rate limits, probed %v",
			maxConsecutiveRateLimits, src.probed)
	}
}

func TestValidateAbortsOnAuthFailure(t *testing.T) {
	src := &fakeSource{
		probes: map[string]models.ProbeResult{
			"222222222222222222": {Status: 200, Body: `{"data":{"user":{"username":"probe"}}}`},
		},
		probeErr: map[string]error{
			"111111111111111111": apierrors.New(apierrors.ErrorTypeAuth, "session expired", 401),
		},
	}
	finder := newTestFinder(src)

	_, err := finder.Validate(context.Background(),
		[]string{"111111111111111111", "222222222222222222"})
	if !apierrors.IsAuth(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if len(src.probed) != 1 {
		t.Errorf("expected validation to stop immediately on auth failure, probed %v", src.probed)
	}
}

func TestClassifyProbe(t *testing.T) {
	cases := []struct {
		name   string
		result models.ProbeResult
		want   Verdict
	}{
		{"valid user payload", models.ProbeResult{Status: 200, Body: `{"data":{"user":{"username":"x"}}}`}, VerdictValid},
		{"not found message", models.ProbeResult{Status: 404, Body: `query was not found`}, VerdictInvalid},
		{"null user", models.ProbeResult{Status: 200, Body: `{"data":{"user":null}}`}, VerdictUnconfirmed},
		{"server error", models.ProbeResult{Status: 500, Body: ``}, VerdictUnconfirmed},
	}
	for _, tc := range cases {
		if got := classifyProbe(tc.result); got != tc.want {
			t.Errorf("%s: verdict = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestValidateWaitsBetweenProbes(t *testing.T) {
	src := &fakeSource{
		probes: map[string]models.ProbeResult{
			"111111111111111111": {Status: 200, Body: `{"data":{"user":{"username":"x"}}}`},
			"222222222222222222": {Status: 200, Body: `{"data":{"user":{"username":"x"}}}`},
		},
	}
	finder := NewFinder(src, "1552043361", 800*time.Millisecond, 50, logger.NopLogger{})

	var waits []time.Duration
	finder.wait = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	if _, err := finder.Validate(context.Background(),
		[]string{"111111111111111111", "222222222222222222"}); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if len(waits) != 1 || waits[0] != 800*time.Millisecond {
		t.Errorf("expected one 800ms wait between probes, got %v", waits)
	}
}

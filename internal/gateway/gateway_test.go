package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/creatorlens/creator-gateway/internal/cache"
	"github.com/creatorlens/creator-gateway/internal/platform"
	"github.com/creatorlens/creator-gateway/internal/profile"
	"github.com/creatorlens/creator-gateway/internal/provider"
	"github.com/creatorlens/creator-gateway/internal/quota"
)

// fakeCaller scripts upstream responses per (method, path) and records every
// call in order.
type fakeCaller struct {
	responses map[string][]byte
	errs      map[string]error
	calls     []recordedCall
}

type recordedCall struct {
	method string
	path   string
	query  url.Values
	body   any
}

func (f *fakeCaller) Call(ctx context.Context, method, path string, q url.Values, body any) ([]byte, error) {
	f.calls = append(f.calls, recordedCall{method: method, path: path, query: q, body: body})
	key := method + " " + path
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	return f.responses[key], nil
}

// fakeStore is an in-memory Store keyed by provider+externalUserId.
type fakeStore struct {
	profiles map[string]*profile.CanonicalProfile
	findErr  error
	writeErr error
	upserts  int
}

func storeKey(p platform.Platform, id string) string { return string(p) + "/" + id }

func (f *fakeStore) Find(ctx context.Context, p platform.Platform, externalID, requestedID, linkedEntityID string) (*profile.CanonicalProfile, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, id := range []string{externalID, requestedID} {
		if id == "" {
			continue
		}
		if prof, ok := f.profiles[storeKey(p, id)]; ok {
			return prof, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) Upsert(ctx context.Context, prof *profile.CanonicalProfile, opts cache.UpsertOpts) (*profile.CanonicalProfile, error) {
	f.upserts++
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	if f.profiles == nil {
		f.profiles = make(map[string]*profile.CanonicalProfile)
	}
	f.profiles[storeKey(prof.Provider, prof.ExternalUserID)] = prof
	return prof, nil
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }

func allPlatforms() map[platform.Platform]bool {
	allowed := make(map[platform.Platform]bool)
	for _, p := range platform.All() {
		allowed[p] = true
	}
	return allowed
}

func newTestGateway(caller *fakeCaller, store *fakeStore, limits map[string]int) *Gateway {
	return New(caller, store, quota.NewMemoryService(limits), allPlatforms())
}

// =============================================================================
// TEST: LookupUsers
// =============================================================================

func TestLookupUsers_ResultBagVariants(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"results key", `{"results":[{"userId":"ig_1","username":"kate"}]}`},
		{"items key", `{"items":[{"userId":"ig_1","username":"kate"}]}`},
		{"influencers key", `{"influencers":[{"userId":"ig_1","username":"kate"}]}`},
		{"users key", `{"users":[{"userId":"ig_1","username":"kate"}]}`},
		{"channels key", `{"channels":[{"userId":"ig_1","username":"kate"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := &fakeCaller{responses: map[string][]byte{
				"GET /instagram/users": []byte(tt.body),
			}}
			gw := newTestGateway(caller, &fakeStore{}, nil)

			users, err := gw.LookupUsers(context.Background(), "acct", platform.Instagram, "kate", 10)
			require.NoError(t, err)
			require.Len(t, users, 1)
			assert.Equal(t, "kate", users[0].Username)
		})
	}
}

func TestLookupUsers_EmptyIsNotFound(t *testing.T) {
	caller := &fakeCaller{responses: map[string][]byte{
		"GET /instagram/users": []byte(`{"results":[]}`),
	}}
	gw := newTestGateway(caller, &fakeStore{}, nil)

	_, err := gw.LookupUsers(context.Background(), "acct", platform.Instagram, "nobody", 10)

	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestLookupUsers_Validation(t *testing.T) {
	gw := newTestGateway(&fakeCaller{}, &fakeStore{}, nil)

	_, err := gw.LookupUsers(context.Background(), "acct", platform.Instagram, "   ", 10)
	var v *ValidationError
	assert.ErrorAs(t, err, &v)

	gwRestricted := New(&fakeCaller{}, &fakeStore{}, quota.NewMemoryService(nil),
		map[platform.Platform]bool{platform.Instagram: true})
	_, err = gwRestricted.LookupUsers(context.Background(), "acct", platform.YouTube, "kate", 10)
	assert.ErrorAs(t, err, &v)
}

func TestLookupUsers_QuotaDeniedBeforeUpstream(t *testing.T) {
	caller := &fakeCaller{}
	gw := newTestGateway(caller, &fakeStore{}, map[string]int{quota.FeatureLookup: 1})

	caller.responses = map[string][]byte{"GET /instagram/users": []byte(`{"results":[{"userId":"x","username":"x"}]}`)}
	_, err := gw.LookupUsers(context.Background(), "acct", platform.Instagram, "x", 1)
	require.NoError(t, err)

	_, err = gw.LookupUsers(context.Background(), "acct", platform.Instagram, "x", 1)
	var exceeded *quota.ExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Len(t, caller.calls, 1, "denied request must not reach the upstream")
}

// =============================================================================
// TEST: Search
// =============================================================================

func TestSearch_YouTubeRetriesRelaxedExactlyOnce(t *testing.T) {
	caller := &fakeCaller{responses: map[string][]byte{
		"POST /youtube/search": []byte(`{"results":[]}`),
	}}
	gw := newTestGateway(caller, &fakeStore{}, nil)

	results, err := gw.Search(context.Background(), "acct", SearchRequest{
		Platforms: []platform.Platform{platform.YouTube},
		Tokens:    []string{"makerlab"},
		Filter:    []byte(`{"influencer":{"lastposted":10},"audience":{"gender":{"code":"MALE"}}}`),
	})
	require.NoError(t, err)
	assert.Empty(t, results)

	require.Len(t, caller.calls, 2, "one strict attempt plus exactly one relaxed retry")

	strict := fmt.Sprintf("%s", caller.calls[0].body)
	relaxed := fmt.Sprintf("%s", caller.calls[1].body)
	assert.Equal(t, int64(30), gjson.Get(strict, "filter.influencer.lastposted").Int())
	assert.True(t, gjson.Get(strict, "filter.audience").Exists())
	assert.False(t, gjson.Get(relaxed, "filter.audience").Exists())
}

func TestSearch_NonYouTubeNeverRetries(t *testing.T) {
	caller := &fakeCaller{responses: map[string][]byte{
		"POST /instagram/search": []byte(`{"results":[]}`),
		"POST /tiktok/search":    []byte(`{"results":[]}`),
	}}
	gw := newTestGateway(caller, &fakeStore{}, nil)

	_, err := gw.Search(context.Background(), "acct", SearchRequest{
		Platforms: []platform.Platform{platform.Instagram, platform.TikTok},
		Tokens:    []string{"kate"},
	})
	require.NoError(t, err)
	assert.Len(t, caller.calls, 2)
}

func TestSearch_MergesAndRanksAcrossPlatforms(t *testing.T) {
	caller := &fakeCaller{responses: map[string][]byte{
		"POST /instagram/search": []byte(`{"results":[
			{"userId":"ig_1","username":"wanderkate","followers":125000,"isVerified":true},
			{"userId":"ig_2","username":"wanderlust_kate","followers":300}
		]}`),
		"POST /youtube/search": []byte(`{"channels":[
			{"channelId":"UC1","customUrl":"@wanderkate","subscriberCount":9000}
		]}`),
	}}
	gw := newTestGateway(caller, &fakeStore{}, nil)

	results, err := gw.Search(context.Background(), "acct", SearchRequest{
		Platforms: []platform.Platform{platform.Instagram, platform.YouTube},
		Tokens:    []string{"wanderkate"},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "ig_1", results[0].Candidate.ExternalUserID)
	assert.Equal(t, 100, results[0].Score)
	assert.Equal(t, "UC1", results[1].Candidate.ExternalUserID)
	assert.Equal(t, "ig_2", results[2].Candidate.ExternalUserID)
}

func TestSearch_LimitTruncates(t *testing.T) {
	caller := &fakeCaller{responses: map[string][]byte{
		"POST /instagram/search": []byte(`{"results":[
			{"userId":"a","username":"kate_a"},
			{"userId":"b","username":"kate_b"},
			{"userId":"c","username":"kate_c"}
		]}`),
	}}
	gw := newTestGateway(caller, &fakeStore{}, nil)

	results, err := gw.Search(context.Background(), "acct", SearchRequest{
		Platforms: []platform.Platform{platform.Instagram},
		Tokens:    []string{"kate"},
		Limit:     2,
	})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearch_QuotaChargedPerPlatform(t *testing.T) {
	caller := &fakeCaller{responses: map[string][]byte{
		"POST /instagram/search": []byte(`{"results":[]}`),
		"POST /tiktok/search":    []byte(`{"results":[]}`),
	}}
	gw := newTestGateway(caller, &fakeStore{}, map[string]int{quota.FeatureSearch: 3})

	req := SearchRequest{Platforms: []platform.Platform{platform.Instagram, platform.TikTok}}
	_, err := gw.Search(context.Background(), "acct", req)
	require.NoError(t, err)

	// 1 of 3 left, a two-platform request no longer fits.
	_, err = gw.Search(context.Background(), "acct", req)
	var exceeded *quota.ExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, 2, exceeded.Requested)
}

func TestSearch_NoPlatformsRejected(t *testing.T) {
	gw := newTestGateway(&fakeCaller{}, &fakeStore{}, nil)
	_, err := gw.Search(context.Background(), "acct", SearchRequest{})
	var v *ValidationError
	assert.ErrorAs(t, err, &v)
}

// =============================================================================
// TEST: Report
// =============================================================================

const reportBody = `{
	"profile": {
		"profile": {
			"userId": "ig_1",
			"username": "wanderkate",
			"followers": 125000
		}
	}
}`

func TestReport_CacheHitShortCircuitsUpstream(t *testing.T) {
	caller := &fakeCaller{}
	store := &fakeStore{profiles: map[string]*profile.CanonicalProfile{
		storeKey(platform.Instagram, "ig_1"): {Provider: platform.Instagram, ExternalUserID: "ig_1", Username: "cached"},
	}}
	gw := newTestGateway(caller, store, nil)

	prof, err := gw.Report(context.Background(), "acct", platform.Instagram, "ig_1", ReportOptions{})
	require.NoError(t, err)
	assert.Equal(t, "cached", prof.Username)
	assert.Empty(t, caller.calls)
}

func TestReport_ForceRefreshAlwaysCallsUpstream(t *testing.T) {
	caller := &fakeCaller{responses: map[string][]byte{
		"GET /instagram/profile/ig_1/report": []byte(reportBody),
	}}
	store := &fakeStore{profiles: map[string]*profile.CanonicalProfile{
		storeKey(platform.Instagram, "ig_1"): {Provider: platform.Instagram, ExternalUserID: "ig_1", Username: "stale"},
	}}
	gw := newTestGateway(caller, store, nil)

	prof, err := gw.Report(context.Background(), "acct", platform.Instagram, "ig_1", ReportOptions{ForceRefresh: true})
	require.NoError(t, err)
	assert.Equal(t, "wanderkate", prof.Username)
	assert.Len(t, caller.calls, 1)
	assert.Equal(t, 1, store.upserts)
}

func TestReport_CacheMissFetchesAndStores(t *testing.T) {
	caller := &fakeCaller{responses: map[string][]byte{
		"GET /instagram/profile/ig_1/report": []byte(reportBody),
	}}
	store := &fakeStore{}
	gw := newTestGateway(caller, store, nil)

	prof, err := gw.Report(context.Background(), "acct", platform.Instagram, "ig_1", ReportOptions{LinkedEntityID: "acct_7"})
	require.NoError(t, err)
	assert.Equal(t, "ig_1", prof.ExternalUserID)
	assert.Equal(t, "acct_7", prof.LinkedEntityID)
	assert.Equal(t, 1, store.upserts)

	require.Len(t, caller.calls, 1)
	assert.Equal(t, "median", caller.calls[0].query.Get("calculationMethod"))
}

func TestReport_CalculationMethodValidated(t *testing.T) {
	caller := &fakeCaller{responses: map[string][]byte{
		"GET /instagram/profile/ig_1/report": []byte(reportBody),
	}}
	gw := newTestGateway(caller, &fakeStore{}, nil)

	_, err := gw.Report(context.Background(), "acct", platform.Instagram, "ig_1", ReportOptions{CalculationMethod: "mode"})
	var v *ValidationError
	require.ErrorAs(t, err, &v)

	_, err = gw.Report(context.Background(), "acct", platform.Instagram, "ig_1", ReportOptions{CalculationMethod: "average"})
	require.NoError(t, err)
	assert.Equal(t, "average", caller.calls[0].query.Get("calculationMethod"))
}

func TestReport_CacheFailuresAreAbsorbed(t *testing.T) {
	t.Run("lookup failure proceeds to live fetch", func(t *testing.T) {
		caller := &fakeCaller{responses: map[string][]byte{
			"GET /instagram/profile/ig_1/report": []byte(reportBody),
		}}
		store := &fakeStore{findErr: fmt.Errorf("disk gone")}
		gw := newTestGateway(caller, store, nil)

		prof, err := gw.Report(context.Background(), "acct", platform.Instagram, "ig_1", ReportOptions{})
		require.NoError(t, err)
		assert.Equal(t, "wanderkate", prof.Username)
	})

	t.Run("write failure still returns fresh data", func(t *testing.T) {
		caller := &fakeCaller{responses: map[string][]byte{
			"GET /instagram/profile/ig_1/report": []byte(reportBody),
		}}
		store := &fakeStore{writeErr: fmt.Errorf("disk full")}
		gw := newTestGateway(caller, store, nil)

		prof, err := gw.Report(context.Background(), "acct", platform.Instagram, "ig_1", ReportOptions{})
		require.NoError(t, err)
		assert.Equal(t, "wanderkate", prof.Username)
	})
}

func TestReport_NoExternalIDSkipsCache(t *testing.T) {
	caller := &fakeCaller{responses: map[string][]byte{
		"GET /instagram/profile/handlekate/report": []byte(`{"profile":{"username":"handlekate"}}`),
	}}
	store := &fakeStore{}
	gw := newTestGateway(caller, store, nil)

	prof, err := gw.Report(context.Background(), "acct", platform.Instagram, "handlekate", ReportOptions{})
	require.NoError(t, err)
	assert.Equal(t, "handlekate", prof.Username)
	assert.Zero(t, store.upserts, "a profile without a stable id must not be cached")
}

func TestReport_Upstream404IsNotFound(t *testing.T) {
	caller := &fakeCaller{errs: map[string]error{
		"GET /instagram/profile/ig_gone/report": &provider.RejectedError{Status: http.StatusNotFound, Message: "no such profile"},
	}}
	gw := newTestGateway(caller, &fakeStore{}, nil)

	_, err := gw.Report(context.Background(), "acct", platform.Instagram, "ig_gone", ReportOptions{})
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestReport_OtherUpstreamErrorsPassThrough(t *testing.T) {
	rejected := &provider.RejectedError{Status: http.StatusTooManyRequests, Message: "slow down"}
	caller := &fakeCaller{errs: map[string]error{
		"GET /instagram/profile/ig_1/report": rejected,
	}}
	gw := newTestGateway(caller, &fakeStore{}, nil)

	_, err := gw.Report(context.Background(), "acct", platform.Instagram, "ig_1", ReportOptions{})
	var rej *provider.RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, http.StatusTooManyRequests, rej.Status)
}

package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sppurge/internal/core/domain"
)

func newTestResolver(graph *mockGraph, folder string) *Resolver {
	return NewResolver(graph, ResolverTarget{
		Site:       graph.site,
		Host:       "contoso.sharepoint.com",
		SiteName:   "Engineering",
		DriveID:    graph.driveID,
		FolderPath: folder,
	}, domain.DefaultConcurrency, nil)
}

func TestResolver_Global_FoundOnSitePath(t *testing.T) {
	graph := newMockGraph()
	graph.setItem(sitePathPrefixEng+"F1", "F1")

	res := newTestResolver(graph, "").Check(context.Background(), domain.FileKey{Value: "F1"})

	assert.Equal(t, domain.ExistenceFound, res.Existence)
	assert.Equal(t, MethodSitePath, res.Method)
	assert.Len(t, graph.calls, 1)
}

func TestResolver_Global_FallsThroughToSiteID(t *testing.T) {
	graph := newMockGraph()
	graph.itemErrs[siteIDPrefix+"F1"] = graphNotFound("F1")

	res := newTestResolver(graph, "").Check(context.Background(), domain.FileKey{Value: "F1"})

	assert.Equal(t, domain.ExistenceMissing, res.Existence)
	assert.Equal(t, MethodSiteID, res.Method)
	assert.Equal(t, []string{sitePathPrefixEng + "F1", siteIDPrefix + "F1"}, graph.calls)
}

func TestResolver_Global_DriveItemsLast(t *testing.T) {
	graph := newMockGraph()
	graph.setItem(drivePrefix+"F1", "F1")

	res := newTestResolver(graph, "").Check(context.Background(), domain.FileKey{Value: "F1"})

	assert.Equal(t, domain.ExistenceFound, res.Existence)
	assert.Equal(t, MethodDriveItems, res.Method)
	assert.Len(t, graph.calls, 3)
}

func TestResolver_Global_AllShapesFail(t *testing.T) {
	graph := newMockGraph()
	for _, prefix := range []string{sitePathPrefixEng, siteIDPrefix, drivePrefix} {
		graph.itemErrs[prefix+"F1"] = errGraphUnavailable
	}

	res := newTestResolver(graph, "").Check(context.Background(), domain.FileKey{Value: "F1"})

	assert.Equal(t, domain.ExistenceUnknown, res.Existence)
	assert.Equal(t, MethodAllFailed, res.Method)
	assert.Len(t, graph.calls, 3)
}

func TestResolver_Global_RootSiteAndPlainSiteID(t *testing.T) {
	graph := newMockGraph()
	graph.site = domain.Site{ID: "plain-site-id"}
	resolver := NewResolver(graph, ResolverTarget{
		Site:    graph.site,
		Host:    "https://contoso.sharepoint.com/",
		DriveID: "drive-1",
	}, 10, nil)

	res := resolver.Check(context.Background(), domain.FileKey{Value: "F1"})

	assert.Equal(t, domain.ExistenceUnknown, res.Existence)
	// No composite site shape for a plain site ID
	assert.Equal(t, []string{
		"/sites/contoso.sharepoint.com:/drive/items/F1",
		drivePrefix + "F1",
	}, graph.calls)
}

func TestResolver_Global_ResolvesDirectURL(t *testing.T) {
	graph := newMockGraph()
	graph.setItem("/drives/drive-1/root:/Shared%20Documents/ppt/a.pdf", "ITEM9")
	graph.setItem(sitePathPrefixEng+"ITEM9", "ITEM9")

	key := domain.FileKey{Value: "https://contoso.sharepoint.com/Shared%20Documents/ppt/a.pdf"}
	res := newTestResolver(graph, "").Check(context.Background(), key)

	assert.Equal(t, domain.ExistenceFound, res.Existence)
	assert.Equal(t, "ITEM9", res.ResolvedID)
	assert.Equal(t, MethodSitePath, res.Method)
}

func TestResolver_Global_URLNotFoundIsDefinitive(t *testing.T) {
	graph := newMockGraph()
	graph.itemErrs["/drives/drive-1/root:/Shared%20Documents/ppt/gone.pdf"] = graphNotFound("gone")

	key := domain.FileKey{Value: "https://contoso.sharepoint.com/Shared%20Documents/ppt/gone.pdf"}
	res := newTestResolver(graph, "").Check(context.Background(), key)

	assert.Equal(t, domain.ExistenceMissing, res.Existence)
	assert.Equal(t, MethodURLNotFound, res.Method)
	assert.Len(t, graph.calls, 1)
}

func TestResolver_Global_URLUnresolved(t *testing.T) {
	graph := newMockGraph()

	key := domain.FileKey{Value: "https://contoso.sharepoint.com/Shared%20Documents/odd.pdf"}
	res := newTestResolver(graph, "").Check(context.Background(), key)

	assert.Equal(t, domain.ExistenceUnknown, res.Existence)
	assert.Equal(t, MethodURLUnresolved, res.Method)
	// Three distinct encodings, no item lookups
	assert.Len(t, graph.calls, 3)
	assert.Empty(t, graph.callsWithPrefix("/sites/"))
}

func TestResolver_Folder_MatchesByName(t *testing.T) {
	graph := newMockGraph()
	graph.children["/drives/drive-1/root:/ppt:/children"] = []domain.DriveItem{
		{ID: "X1", Name: "Report.PDF"},
	}

	res := newTestResolver(graph, "/ppt").Check(context.Background(), domain.FileKey{Value: guidA, DisplayName: "report.pdf"})

	assert.Equal(t, domain.ExistenceFound, res.Existence)
	assert.Equal(t, MethodFolderName, res.Method)
	assert.Equal(t, "X1", res.ResolvedID)
}

func TestResolver_Folder_MatchesByNormalisedID(t *testing.T) {
	graph := newMockGraph()
	graph.children["/drives/drive-1/root:/ppt:/children"] = []domain.DriveItem{
		{ID: "abcd-ef01", Name: "other.pdf"},
	}

	res := newTestResolver(graph, "ppt").Check(context.Background(), domain.FileKey{Value: "ABCDEF01", DisplayName: "renamed.pdf"})

	assert.Equal(t, domain.ExistenceFound, res.Existence)
	assert.Equal(t, MethodFolderID, res.Method)
}

func TestResolver_Folder_NeverConsultsOtherLocations(t *testing.T) {
	graph := newMockGraph()
	graph.children["/drives/drive-1/root:/ppt:/children"] = []domain.DriveItem{{ID: "X1", Name: "a.pdf"}}
	// The file exists elsewhere in the library
	graph.setItem(sitePathPrefixEng+guidB, guidB)

	res := newTestResolver(graph, "/ppt").Check(context.Background(), domain.FileKey{Value: guidB, DisplayName: "b.pdf"})

	assert.Equal(t, domain.ExistenceMissing, res.Existence)
	assert.Equal(t, MethodFolderMissing, res.Method)
	for _, call := range graph.calls {
		assert.True(t, strings.HasPrefix(call, "/drives/drive-1/root:/ppt:"), call)
	}
}

func TestResolver_Folder_DirectURLWithQuery(t *testing.T) {
	graph := newMockGraph()
	graph.children["/drives/drive-1/root:/ppt:/children"] = []domain.DriveItem{{ID: "X1", Name: "report.pdf"}}
	graph.setItem("/drives/drive-1/root:/Shared%20Documents/ppt/report.pdf", "X1")

	link := "https://contoso.sharepoint.com/Shared%20Documents/ppt/report.pdf?web=1"
	files := GroupChunks([]domain.IndexedChunk{{ID: "c1", IdentityValue: link, URL: link}}, domain.FieldURL)
	require.Len(t, files, 1)
	assert.Equal(t, "report.pdf", files[0].DisplayName)

	res := newTestResolver(graph, "/ppt").Check(context.Background(), files[0])

	assert.Equal(t, domain.ExistenceFound, res.Existence)
	assert.Equal(t, MethodFolderName, res.Method)
}

func TestResolver_Folder_DirectURLMatchesResolvedID(t *testing.T) {
	graph := newMockGraph()
	graph.children["/drives/drive-1/root:/ppt:/children"] = []domain.DriveItem{{ID: "X1", Name: "renamed.pdf"}}
	graph.setItem("/drives/drive-1/root:/Shared%20Documents/ppt/report.pdf", "X1")

	key := domain.FileKey{
		Value:       "https://contoso.sharepoint.com/Shared%20Documents/ppt/report.pdf?web=1",
		DisplayName: "report.pdf",
	}
	res := newTestResolver(graph, "/ppt").Check(context.Background(), key)

	assert.Equal(t, domain.ExistenceFound, res.Existence)
	assert.Equal(t, MethodFolderID, res.Method)
	assert.Equal(t, "X1", res.ResolvedID)
}

func TestResolver_Folder_DirectURLNotFound(t *testing.T) {
	graph := newMockGraph()
	graph.children["/drives/drive-1/root:/ppt:/children"] = []domain.DriveItem{{ID: "X1", Name: "other.pdf"}}
	graph.itemErrs["/drives/drive-1/root:/Shared%20Documents/ppt/gone.pdf"] = graphNotFound("gone")

	key := domain.FileKey{Value: "https://contoso.sharepoint.com/Shared%20Documents/ppt/gone.pdf", DisplayName: "gone.pdf"}
	res := newTestResolver(graph, "/ppt").Check(context.Background(), key)

	assert.Equal(t, domain.ExistenceMissing, res.Existence)
	assert.Equal(t, MethodURLNotFound, res.Method)
}

func TestResolver_Folder_DirectURLOutsideFolder(t *testing.T) {
	graph := newMockGraph()
	graph.children["/drives/drive-1/root:/ppt:/children"] = []domain.DriveItem{{ID: "X1", Name: "other.pdf"}}
	graph.setItem("/drives/drive-1/root:/Shared%20Documents/archive/a.pdf", "Y7")

	key := domain.FileKey{Value: "https://contoso.sharepoint.com/Shared%20Documents/archive/a.pdf", DisplayName: "a.pdf"}
	res := newTestResolver(graph, "/ppt").Check(context.Background(), key)

	assert.Equal(t, domain.ExistenceMissing, res.Existence)
	assert.Equal(t, MethodFolderMissing, res.Method)
}

func TestResolver_Folder_DirectURLUnresolved(t *testing.T) {
	graph := newMockGraph()
	graph.children["/drives/drive-1/root:/ppt:/children"] = []domain.DriveItem{{ID: "X1", Name: "other.pdf"}}

	key := domain.FileKey{Value: "https://contoso.sharepoint.com/Shared%20Documents/ppt/odd.pdf", DisplayName: "odd.pdf"}
	res := newTestResolver(graph, "/ppt").Check(context.Background(), key)

	assert.Equal(t, domain.ExistenceUnknown, res.Existence)
	assert.Equal(t, MethodURLUnresolved, res.Method)
}

func TestResolver_Folder_AbsentFolder(t *testing.T) {
	graph := newMockGraph()

	res := newTestResolver(graph, "/missing").Check(context.Background(), domain.FileKey{Value: guidA, DisplayName: "a.pdf"})

	assert.Equal(t, domain.ExistenceMissing, res.Existence)
	assert.Equal(t, MethodFolderAbsent, res.Method)
}

func TestResolver_Folder_ErrorIsUnknown(t *testing.T) {
	graph := newMockGraph()
	graph.childrenErrs["/drives/drive-1/root:/ppt:/children"] = errGraphUnavailable

	res := newTestResolver(graph, "/ppt").Check(context.Background(), domain.FileKey{Value: guidA, DisplayName: "a.pdf"})

	assert.Equal(t, domain.ExistenceUnknown, res.Existence)
	assert.Equal(t, MethodFolderError, res.Method)
}

func TestResolver_Folder_ListingIsShared(t *testing.T) {
	graph := newMockGraph()
	graph.delay = 5 * time.Millisecond
	graph.children["/drives/drive-1/root:/ppt:/children"] = []domain.DriveItem{{ID: "X1", Name: "file-0.pdf"}}

	files := make([]domain.FileKey, 20)
	for i := range files {
		files[i] = domain.FileKey{Value: fmt.Sprintf("F%d", i), DisplayName: fmt.Sprintf("file-%d.pdf", i)}
	}

	results := newTestResolver(graph, "/ppt").CheckAll(context.Background(), files)

	assert.Len(t, graph.calls, 1)
	assert.Equal(t, domain.ExistenceFound, results[0].Existence)
	for _, r := range results[1:] {
		assert.Equal(t, domain.ExistenceMissing, r.Existence)
	}
}

func TestResolver_CheckAll_BoundedConcurrencyAndOrder(t *testing.T) {
	graph := newMockGraph()
	graph.delay = 10 * time.Millisecond

	files := make([]domain.FileKey, 40)
	for i := range files {
		id := fmt.Sprintf("F%02d", i)
		files[i] = domain.FileKey{Value: id}
		if i%2 == 0 {
			graph.setItem(sitePathPrefixEng+id, id)
		} else {
			graph.itemErrs[sitePathPrefixEng+id] = graphNotFound(id)
		}
	}
	metrics := newRecordingMetrics()
	resolver := NewResolver(graph, ResolverTarget{
		Site: graph.site, Host: "contoso.sharepoint.com", SiteName: "Engineering", DriveID: "drive-1",
	}, 10, metrics)

	results := resolver.CheckAll(context.Background(), files)

	require.Len(t, results, 40)
	for i, r := range results {
		assert.Equal(t, files[i].Value, r.Key.Value)
		if i%2 == 0 {
			assert.Equal(t, domain.ExistenceFound, r.Existence)
		} else {
			assert.Equal(t, domain.ExistenceMissing, r.Existence)
		}
	}
	assert.LessOrEqual(t, graph.maxInFlight, 10)
	assert.Greater(t, graph.maxInFlight, 1)
	assert.Equal(t, 20, metrics.existence[domain.ExistenceFound])
	assert.Equal(t, 20, metrics.existence[domain.ExistenceMissing])
}

func TestResolver_CheckAll_ConcurrencyIsCapped(t *testing.T) {
	graph := newMockGraph()
	graph.delay = 5 * time.Millisecond

	files := make([]domain.FileKey, 30)
	for i := range files {
		id := fmt.Sprintf("F%02d", i)
		files[i] = domain.FileKey{Value: id}
		graph.setItem(sitePathPrefixEng+id, id)
	}
	resolver := NewResolver(graph, ResolverTarget{
		Site: graph.site, Host: "contoso.sharepoint.com", SiteName: "Engineering", DriveID: "drive-1",
	}, 50, nil)

	resolver.CheckAll(context.Background(), files)

	assert.LessOrEqual(t, graph.maxInFlight, domain.MaxConcurrency)
}

func TestResolver_CancelledContext(t *testing.T) {
	graph := newMockGraph()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newTestResolver(graph, "").Check(ctx, domain.FileKey{Value: "F1"})

	assert.Equal(t, domain.ExistenceUnknown, res.Existence)
	assert.Equal(t, MethodCancelled, res.Method)
	assert.Empty(t, graph.calls)
}

func TestPathEncodings(t *testing.T) {
	got := PathEncodings("Shared Documents/ppt/a b.pdf")

	assert.Equal(t, []string{
		"Shared%20Documents/ppt/a%20b.pdf",
		"Shared%20Documents%2Fppt%2Fa%20b.pdf",
		"Shared Documents/ppt/a b.pdf",
		"Shared%20Documents/ppt/a b.pdf",
	}, got)

	// Already safe paths collapse to fewer strategies
	assert.Equal(t, []string{"docs/a.pdf", "docs%2Fa.pdf"}, PathEncodings("docs/a.pdf"))
}

func TestFolderChildrenResource(t *testing.T) {
	tests := []struct {
		folder string
		want   string
	}{
		{"/ppt", "/drives/d/root:/ppt:/children"},
		{"ppt", "/drives/d/root:/ppt:/children"},
		{"/ppt/", "/drives/d/root:/ppt:/children"},
		{"/Team Docs/2024", "/drives/d/root:/Team%20Docs/2024:/children"},
		{"/", "/drives/d/root/children"},
		{"", "/drives/d/root/children"},
	}
	for _, tt := range tests {
		t.Run(tt.folder, func(t *testing.T) {
			assert.Equal(t, tt.want, FolderChildrenResource("d", tt.folder))
		})
	}
}

func TestQuotePath(t *testing.T) {
	assert.Equal(t, "a%2Bb~c_d.e-f", quotePath("a+b~c_d.e-f", ""))
	assert.Equal(t, "%C3%A9t%C3%A9/x", quotePath("été/x", "/"))
}

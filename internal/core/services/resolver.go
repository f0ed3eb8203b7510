package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/custodia-labs/sppurge/internal/core/domain"
	"github.com/custodia-labs/sppurge/internal/core/ports/driven"
	"github.com/custodia-labs/sppurge/internal/logger"
)

const folderCacheSize = 64

// Lookup methods reported in ExistenceResult.Method.
const (
	MethodFolderName    = "folder:name"
	MethodFolderID      = "folder:id"
	MethodFolderAbsent  = "folder:absent"
	MethodFolderMissing = "folder:not-listed"
	MethodFolderError   = "folder:error"
	MethodSitePath      = "site-path"
	MethodSiteID        = "site-id"
	MethodDriveItems    = "drive-items"
	MethodURLNotFound   = "url:not-found"
	MethodURLUnresolved = "url:unresolved"
	MethodAllFailed     = "all-failed"
	MethodCancelled     = "cancelled"
)

// ResolverTarget describes the site the resolver checks against.
// It is fixed for the duration of one run.
type ResolverTarget struct {
	Site domain.Site

	// Host is the tenant host, e.g. contoso.sharepoint.com.
	Host string

	// SiteName is empty for the tenant root site.
	SiteName string

	DriveID string

	// FolderPath scopes every check to one folder when set.
	FolderPath string
}

type folderListing struct {
	items  []domain.DriveItem
	absent bool
}

type urlResolution struct {
	id        string
	existence domain.Existence
}

// Resolver decides whether SharePoint files still exist.
// A Resolver serves one run; its folder cache is not shared across runs.
type Resolver struct {
	graph   driven.GraphClient
	target  ResolverTarget
	sem     *semaphore.Weighted
	folders *lru.Cache[string, folderListing]
	flight  singleflight.Group
	metrics driven.Metrics
}

// NewResolver creates a resolver allowing at most concurrency checks in flight,
// never more than domain.MaxConcurrency.
func NewResolver(graph driven.GraphClient, target ResolverTarget, concurrency int, metrics driven.Metrics) *Resolver {
	if concurrency < 1 {
		concurrency = domain.DefaultConcurrency
	}
	concurrency = min(concurrency, domain.MaxConcurrency)
	folders, _ := lru.New[string, folderListing](folderCacheSize)
	return &Resolver{
		graph:   graph,
		target:  target,
		sem:     semaphore.NewWeighted(int64(concurrency)),
		folders: folders,
		metrics: metricsOrNop(metrics),
	}
}

// CheckAll checks every file concurrently. Results are in input order.
func (r *Resolver) CheckAll(ctx context.Context, files []domain.FileKey) []domain.ExistenceResult {
	results := make([]domain.ExistenceResult, len(files))
	var wg sync.WaitGroup
	for i := range files {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Check(ctx, files[i])
		}(i)
	}
	wg.Wait()
	return results
}

// Check decides whether one file exists. It never fails: a lookup Graph could
// not answer is reported as ExistenceUnknown.
func (r *Resolver) Check(ctx context.Context, key domain.FileKey) domain.ExistenceResult {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return domain.ExistenceResult{Key: key, Method: MethodCancelled}
	}
	defer r.sem.Release(1)

	var res domain.ExistenceResult
	if r.target.FolderPath != "" {
		res = r.checkInFolder(ctx, key)
	} else {
		res = r.checkGlobal(ctx, key)
	}
	r.metrics.ObserveExistence(res.Existence)
	logger.Debug("%s (%s): %s via %s", key.Value, key.DisplayName, res.Existence, res.Method)
	return res
}

func (r *Resolver) checkInFolder(ctx context.Context, key domain.FileKey) domain.ExistenceResult {
	res := domain.ExistenceResult{Key: key}
	folder := r.target.FolderPath

	listing, err := r.listFolder(ctx, folder)
	if err != nil {
		logger.Error("error checking folder %s: %v", folder, err)
		res.Method = MethodFolderError
		return res
	}
	if listing.absent {
		logger.Warn("target folder %s not found", folder)
		res.Existence = domain.ExistenceMissing
		res.Method = MethodFolderAbsent
		return res
	}

	if key.DisplayName != "" {
		for _, item := range listing.items {
			if strings.EqualFold(item.Name, key.DisplayName) {
				res.Existence = domain.ExistenceFound
				res.ResolvedID = item.ID
				res.Method = MethodFolderName
				return res
			}
		}
	}

	id := key.Value
	if key.IsURL() {
		resolved, method := r.resolveURL(ctx, key.Value)
		if resolved.existence != domain.ExistenceFound {
			res.Existence = resolved.existence
			res.Method = method
			return res
		}
		id = resolved.id
	}
	for _, item := range listing.items {
		if item.ID == id || normaliseID(item.ID) == normaliseID(id) {
			res.Existence = domain.ExistenceFound
			res.ResolvedID = item.ID
			res.Method = MethodFolderID
			return res
		}
	}

	logger.Info("file %q (ID: %s) not found in target folder %s", key.DisplayName, key.Value, folder)
	res.Existence = domain.ExistenceMissing
	res.Method = MethodFolderMissing
	return res
}

// listFolder returns the folder's children. Definitive answers are cached and
// concurrent callers share one request.
func (r *Resolver) listFolder(ctx context.Context, folder string) (folderListing, error) {
	if listing, ok := r.folders.Get(folder); ok {
		return listing, nil
	}
	v, err, _ := r.flight.Do(folder, func() (any, error) {
		if listing, ok := r.folders.Get(folder); ok {
			return listing, nil
		}
		items, err := r.graph.ListChildren(ctx, FolderChildrenResource(r.target.DriveID, folder))
		var listing folderListing
		switch {
		case errors.Is(err, domain.ErrNotFound):
			listing.absent = true
		case err != nil:
			return folderListing{}, err
		default:
			listing.items = items
			logger.Info("found %d items in folder %s", len(items), folder)
		}
		r.folders.Add(folder, listing)
		return listing, nil
	})
	if err != nil {
		return folderListing{}, err
	}
	return v.(folderListing), nil
}

func (r *Resolver) checkGlobal(ctx context.Context, key domain.FileKey) domain.ExistenceResult {
	res := domain.ExistenceResult{Key: key}
	id := key.Value

	if key.IsURL() {
		resolved, method := r.resolveURL(ctx, key.Value)
		if resolved.existence != domain.ExistenceFound {
			res.Existence = resolved.existence
			res.Method = method
			return res
		}
		id = resolved.id
		res.ResolvedID = id
	}

	existence, method, err := tryInOrder(ctx, r.itemStrategies(id))
	if err != nil {
		logger.Warn("all check methods failed for %s: %v", id, err)
		res.Method = MethodAllFailed
		return res
	}
	res.Existence = existence
	res.Method = method
	return res
}

// itemStrategies lists the item lookups tried for a global check, most
// specific first. The composite site shape is only valid for composite IDs.
func (r *Resolver) itemStrategies(id string) []strategy[domain.Existence] {
	escaped := url.PathEscape(id)
	var strategies []strategy[domain.Existence]

	if host := bareHost(r.target.Host); host != "" {
		strategies = append(strategies, r.itemStrategy(MethodSitePath, sitePathPrefix(host, r.target.SiteName)+"/drive/items/"+escaped))
	}
	if r.target.Site.IsComposite() {
		strategies = append(strategies, r.itemStrategy(MethodSiteID, "/sites/"+r.target.Site.ID+"/drive/items/"+escaped))
	}
	if r.target.DriveID != "" {
		strategies = append(strategies, r.itemStrategy(MethodDriveItems, "/drives/"+r.target.DriveID+"/items/"+escaped))
	}
	return strategies
}

func (r *Resolver) itemStrategy(name, resource string) strategy[domain.Existence] {
	return strategy[domain.Existence]{
		name: name,
		run: func(ctx context.Context) (domain.Existence, bool, error) {
			_, err := r.graph.GetItem(ctx, resource)
			switch {
			case err == nil:
				return domain.ExistenceFound, true, nil
			case errors.Is(err, domain.ErrNotFound):
				return domain.ExistenceMissing, true, nil
			default:
				return domain.ExistenceUnknown, false, err
			}
		},
	}
}

// resolveURL turns a direct file link into a drive item ID by trying several
// encodings of its path. A 404 for any encoding is definitive.
func (r *Resolver) resolveURL(ctx context.Context, raw string) (urlResolution, string) {
	u, err := url.Parse(raw)
	if err != nil {
		logger.Warn("could not parse file URL %q: %v", raw, err)
		return urlResolution{}, MethodURLUnresolved
	}
	path := strings.TrimPrefix(u.Path, "/")

	var strategies []strategy[urlResolution]
	for i, encoded := range PathEncodings(path) {
		resource := "/drives/" + r.target.DriveID + "/root:/" + encoded
		strategies = append(strategies, strategy[urlResolution]{
			name: fmt.Sprintf("url-encoding-%d", i+1),
			run: func(ctx context.Context) (urlResolution, bool, error) {
				item, err := r.graph.GetItem(ctx, resource)
				switch {
				case err == nil && item != nil && item.ID != "":
					return urlResolution{id: item.ID, existence: domain.ExistenceFound}, true, nil
				case err == nil:
					return urlResolution{}, false, errors.New("response carried no item id")
				case errors.Is(err, domain.ErrNotFound):
					return urlResolution{existence: domain.ExistenceMissing}, true, nil
				default:
					return urlResolution{}, false, err
				}
			},
		})
	}

	resolved, _, err := tryInOrder(ctx, strategies)
	if err != nil {
		logger.Debug("all URL resolution strategies failed for %s: %v", raw, err)
		return urlResolution{}, MethodURLUnresolved
	}
	if resolved.existence == domain.ExistenceMissing {
		return resolved, MethodURLNotFound
	}
	return resolved, ""
}

// PathEncodings returns the distinct encodings tried when resolving a
// document-library path: slash-preserving quoting, full quoting, the raw
// path, and the raw path with only "Shared Documents" escaped.
func PathEncodings(path string) []string {
	candidates := []string{
		quotePath(path, "/"),
		quotePath(path, ""),
		path,
		strings.ReplaceAll(path, "Shared Documents", "Shared%20Documents"),
	}
	seen := make(map[string]bool, len(candidates))
	out := candidates[:0]
	for _, c := range candidates {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// FolderChildrenResource returns the Graph resource listing a folder's children.
func FolderChildrenResource(driveID, folder string) string {
	if folder == "" || folder == "/" {
		return "/drives/" + driveID + "/root/children"
	}
	if !strings.HasPrefix(folder, "/") {
		folder = "/" + folder
	}
	return "/drives/" + driveID + "/root:" + quotePath(strings.TrimSuffix(folder, "/"), "/") + ":/children"
}

func sitePathPrefix(host, siteName string) string {
	if strings.TrimSpace(siteName) == "" {
		return "/sites/" + host + ":"
	}
	sitePath := siteName
	if !strings.HasPrefix(sitePath, "/") {
		sitePath = "/sites/" + sitePath
	}
	return "/sites/" + host + ":" + quotePath(sitePath, "/") + ":"
}

func bareHost(host string) string {
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	return strings.TrimSuffix(host, "/")
}

func normaliseID(id string) string {
	return strings.ToUpper(strings.ReplaceAll(id, "-", ""))
}

// quotePath percent-encodes every byte except unreserved characters and
// those listed in safe.
func quotePath(s, safe string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) || strings.IndexByte(safe, c) >= 0 {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0F])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	default:
		return false
	}
}

package humastar

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
)

// EntryPoint is the path that links to every collection.
const EntryPoint = "/health"

// StreamTag marks SSE operations; they take no part in link discovery.
const StreamTag = "stream"

var (
	linkMu  sync.RWMutex
	linkMap map[string][]string
)

type pathInfo struct {
	path string
	tags []string
}

// AutoLinks walks the OpenAPI spec and derives the hypermedia links of every
// operation path. Call after all routes are registered.
func AutoLinks(api huma.API) {
	oapi := api.OpenAPI()
	links := map[string][]string{}
	add := func(from, to, rel string) {
		val := fmt.Sprintf(`<%s>; rel="%s"`, to, rel)
		for _, existing := range links[from] {
			if existing == val {
				return
			}
		}
		links[from] = append(links[from], val)
	}

	var collections, items []pathInfo
	for p, pi := range oapi.Paths {
		tags := primaryTags(pi)
		if hasTag(tags, StreamTag) {
			continue
		}
		if strings.Contains(p, "{") {
			items = append(items, pathInfo{p, tags})
		} else {
			collections = append(collections, pathInfo{p, tags})
		}
	}
	sort.Slice(collections, func(i, j int) bool { return collections[i].path < collections[j].path })
	sort.Slice(items, func(i, j int) bool { return items[i].path < items[j].path })

	for _, item := range items {
		parent := path.Dir(item.path)
		if _, ok := oapi.Paths[parent]; ok {
			add(item.path, parent, "collection")
			add(parent, item.path, "item")
		}
		if pi := oapi.Paths[item.path]; pi.Put != nil || pi.Patch != nil {
			add(item.path, item.path, "edit")
		}
	}

	_, hasQuery := oapi.Paths["/api/v1/query"]
	for _, coll := range collections {
		if coll.path == EntryPoint {
			continue
		}
		add(coll.path, EntryPoint, "up")
		add(EntryPoint, coll.path, lastSegment(coll.path))
		if oapi.Paths[coll.path].Post != nil {
			add(coll.path, coll.path, "create-form")
		}
	}
	add(EntryPoint, "/openapi.json", "describedby")
	add(EntryPoint, "/openapi.json", "service-desc")
	add(EntryPoint, "/docs", "service-doc")
	if hasQuery {
		add(EntryPoint, "/api/v1/query", "search")
	}

	for _, all := range [][]pathInfo{collections, items} {
		for _, pi := range all {
			if ref := responseSchemaRef(oapi.Paths[pi.path]); ref != "" {
				add(pi.path, "/openapi.json#/components/schemas/"+ref, "describedby")
			}
		}
	}

	for p, pi := range oapi.Paths {
		headers, ok := links[p]
		if !ok {
			continue
		}
		for _, op := range operationsOf(pi) {
			if op != nil {
				injectResponseLinks(op, headers)
			}
		}
	}

	linkMu.Lock()
	linkMap = links
	linkMu.Unlock()
}

// Links returns the derived Link header values of an operation path.
func Links(opPath string) []string {
	linkMu.RLock()
	defer linkMu.RUnlock()
	return linkMap[opPath]
}

// LinkTransformer returns a Huma Transformer that writes the derived Link
// headers, a self link for item paths, pagination links and actions.
func LinkTransformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}
		for _, link := range Links(op.Path) {
			ctx.AppendHeader("Link", link)
		}
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}
		if p, ok := v.(Pager); ok {
			for _, link := range p.PaginationLinks(ctx.URL().Path) {
				ctx.AppendHeader("Link", link)
			}
		}
		if a, ok := v.(Actor); ok {
			for _, action := range a.Actions() {
				ctx.AppendHeader("Link", action.LinkHeader())
			}
		}
		return v, nil
	}
}

func primaryTags(pi *huma.PathItem) []string {
	for _, op := range operationsOf(pi) {
		if op != nil && len(op.Tags) > 0 {
			return op.Tags
		}
	}
	return nil
}

func operationsOf(pi *huma.PathItem) []*huma.Operation {
	return []*huma.Operation{pi.Get, pi.Post, pi.Put, pi.Patch, pi.Delete}
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func lastSegment(p string) string {
	parts := strings.Split(strings.TrimRight(p, "/"), "/")
	return parts[len(parts)-1]
}

// injectResponseLinks documents the relationships on the 2xx response.
func injectResponseLinks(op *huma.Operation, headers []string) {
	var resp *huma.Response
	for code, r := range op.Responses {
		if strings.HasPrefix(code, "2") {
			resp = r
			break
		}
	}
	if resp == nil {
		return
	}
	if resp.Links == nil {
		resp.Links = map[string]*huma.Link{}
	}
	for _, h := range headers {
		rel, href := parseLinkHeader(h)
		if rel == "" {
			continue
		}
		resp.Links[rel] = &huma.Link{
			OperationRef: href,
			Description:  "Related: " + rel,
		}
	}
}

func responseSchemaRef(pi *huma.PathItem) string {
	if pi.Get == nil {
		return ""
	}
	for code, resp := range pi.Get.Responses {
		if !strings.HasPrefix(code, "2") || resp.Content == nil {
			continue
		}
		for _, mt := range resp.Content {
			if mt.Schema != nil && mt.Schema.Ref != "" {
				return lastSegment(mt.Schema.Ref)
			}
		}
	}
	return ""
}

// parseLinkHeader splits `<url>; rel="name"`.
func parseLinkHeader(h string) (rel, href string) {
	parts := strings.SplitN(h, ";", 2)
	if len(parts) < 2 {
		return "", ""
	}
	href = strings.Trim(strings.TrimSpace(parts[0]), "<>")
	relPart := strings.TrimSpace(parts[1])
	if strings.HasPrefix(relPart, `rel="`) {
		rel = strings.Trim(relPart[4:], `"`)
	}
	return rel, href
}

package emitter

import (
	"path"
	"strings"

	"git.home.luguber.info/inful/pmeyes/internal/article"
)

// ArticleRef is the short article form listed under a folder node.
type ArticleRef struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Slug        string   `json:"slug"`
	PublishedAt string   `json:"publishedAt"`
	ReadingTime int      `json:"readingTime"`
	Tags        []string `json:"tags"`
}

// FolderNode is one directory in the folder tree.
type FolderNode struct {
	Path     string        `json:"path"`
	Name     string        `json:"name"`
	Articles []ArticleRef  `json:"articles"`
	Children []*FolderNode `json:"children"`
}

// BuildFolderTree groups articles by folder. Each article appears in exactly
// one node (its own folder); a node's children are the folders exactly one
// segment deeper. Folders holding no articles directly are still created when
// a descendant has articles. Sibling order is order of first appearance.
func BuildFolderTree(articles []*article.Article) []*FolderNode {
	nodes := map[string]*FolderNode{}
	roots := []*FolderNode{}

	var ensure func(p string) *FolderNode
	ensure = func(p string) *FolderNode {
		if n, ok := nodes[p]; ok {
			return n
		}
		n := &FolderNode{
			Path:     p,
			Name:     path.Base(p),
			Articles: []ArticleRef{},
			Children: []*FolderNode{},
		}
		nodes[p] = n
		if i := strings.LastIndex(p, "/"); i > 0 {
			parent := ensure(p[:i])
			parent.Children = append(parent.Children, n)
		} else {
			roots = append(roots, n)
		}
		return n
	}

	for _, a := range articles {
		n := ensure(a.Folder)
		n.Articles = append(n.Articles, ArticleRef{
			ID:          a.ID,
			Title:       a.Title,
			Slug:        a.Slug,
			PublishedAt: a.PublishedAt,
			ReadingTime: a.ReadingTime,
			Tags:        a.Tags,
		})
	}
	return roots
}

// Walk visits every node depth-first, parents before children.
func Walk(nodes []*FolderNode, fn func(*FolderNode)) {
	for _, n := range nodes {
		fn(n)
		Walk(n.Children, fn)
	}
}

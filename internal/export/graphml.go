// Package export renders the dependency graph as GraphML for visual
// analysis tools. Modules and classes become nested groups, functions and
// methods leaf nodes, relations styled edges.
package export

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"codegraph/internal/logging"
	"codegraph/internal/storage"
)

// Node fill colors by entity kind and visibility
const (
	colorModule  = "#A2C4C9" // light blue
	colorClass   = "#FFD966" // yellow
	colorPublic  = "#B6D7A8" // soft green
	colorPrivate = "#EA9999" // soft red

	colorVerified = "#333333"
	colorLazy     = "#999999"
)

// Options controls what the export includes
type Options struct {
	VerifiedOnly bool // drop relations that only the lazy linker produced
	Compress     bool // zstd-compress the output file
}

// GraphMLExporter reads the stored graph and renders it
type GraphMLExporter struct {
	entities  *storage.EntityRepository
	relations *storage.RelationRepository
	files     *storage.FileRepository
	logger    *logging.Logger
}

// NewGraphMLExporter creates an exporter over the given database
func NewGraphMLExporter(db *storage.DB, logger *logging.Logger) *GraphMLExporter {
	return &GraphMLExporter{
		entities:  storage.NewEntityRepository(db),
		relations: storage.NewRelationRepository(db),
		files:     storage.NewFileRepository(db),
		logger:    logger,
	}
}

type xmlData struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

type xmlNode struct {
	ID       string    `xml:"id,attr"`
	Data     []xmlData `xml:"data"`
	Subgraph *xmlGraph `xml:"graph,omitempty"`
}

type xmlEdge struct {
	ID     string    `xml:"id,attr"`
	Source string    `xml:"source,attr"`
	Target string    `xml:"target,attr"`
	Data   []xmlData `xml:"data"`
}

type xmlGraph struct {
	ID          string    `xml:"id,attr"`
	EdgeDefault string    `xml:"edgedefault,attr"`
	Nodes       []xmlNode `xml:"node"`
	Edges       []xmlEdge `xml:"edge,omitempty"`
}

type xmlKey struct {
	ID       string `xml:"id,attr"`
	For      string `xml:"for,attr"`
	AttrName string `xml:"attr.name,attr"`
	AttrType string `xml:"attr.type,attr"`
}

type xmlGraphML struct {
	XMLName xml.Name `xml:"graphml"`
	Xmlns   string   `xml:"xmlns,attr"`
	Keys    []xmlKey `xml:"key"`
	Graph   xmlGraph `xml:"graph"`
}

var graphKeys = []xmlKey{
	{ID: "label", For: "node", AttrName: "label", AttrType: "string"},
	{ID: "kind", For: "node", AttrName: "kind", AttrType: "string"},
	{ID: "visibility", For: "node", AttrName: "visibility", AttrType: "string"},
	{ID: "signature", For: "node", AttrName: "signature", AttrType: "string"},
	{ID: "color", For: "node", AttrName: "color", AttrType: "string"},
	{ID: "rel_type", For: "edge", AttrName: "rel_type", AttrType: "string"},
	{ID: "verified", For: "edge", AttrName: "verified", AttrType: "boolean"},
	{ID: "line_style", For: "edge", AttrName: "line_style", AttrType: "string"},
	{ID: "edge_color", For: "edge", AttrName: "edge_color", AttrType: "string"},
	{ID: "arrow", For: "edge", AttrName: "arrow", AttrType: "string"},
}

// Generate renders the whole stored graph as a GraphML document
func (e *GraphMLExporter) Generate(opts Options) ([]byte, error) {
	paths, err := e.files.ListAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	sort.Strings(paths)

	var all []*storage.Entity
	meta := make(map[string]*storage.Metadata)
	for _, path := range paths {
		entities, err := e.entities.ListByFile(path)
		if err != nil {
			return nil, err
		}
		for _, ent := range entities {
			m, err := e.entities.GetMetadata(ent.ID)
			if err != nil {
				return nil, err
			}
			meta[ent.ID] = m
		}
		all = append(all, entities...)
	}

	children := make(map[string][]*storage.Entity)
	var roots []*storage.Entity
	for _, ent := range all {
		if ent.ParentID == nil {
			roots = append(roots, ent)
		} else {
			children[*ent.ParentID] = append(children[*ent.ParentID], ent)
		}
	}
	sortEntities(roots)
	for _, kids := range children {
		sortEntities(kids)
	}

	exported := make(map[string]bool, len(all))
	var nodes []xmlNode
	for _, root := range roots {
		nodes = append(nodes, e.buildNode(root, children, meta, exported))
	}

	edges, err := e.buildEdges(opts, exported)
	if err != nil {
		return nil, err
	}

	doc := xmlGraphML{
		Xmlns: "http://graphml.graphdrawing.org/xmlns",
		Keys:  graphKeys,
		Graph: xmlGraph{
			ID:          "G",
			EdgeDefault: "directed",
			Nodes:       nodes,
			Edges:       edges,
		},
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal graphml: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

func (e *GraphMLExporter) buildNode(ent *storage.Entity, children map[string][]*storage.Entity, meta map[string]*storage.Metadata, exported map[string]bool) xmlNode {
	exported[ent.ID] = true

	node := xmlNode{
		ID: ent.ID,
		Data: []xmlData{
			{Key: "label", Value: ent.Name},
			{Key: "kind", Value: ent.Kind},
			{Key: "visibility", Value: ent.Visibility},
			{Key: "color", Value: nodeColor(ent)},
		},
	}
	if m := meta[ent.ID]; m != nil && m.Signature != "" {
		node.Data = append(node.Data, xmlData{Key: "signature", Value: m.Signature})
	}

	kids := children[ent.ID]
	if len(kids) > 0 {
		sub := &xmlGraph{ID: ent.ID + ":", EdgeDefault: "directed"}
		for _, kid := range kids {
			sub.Nodes = append(sub.Nodes, e.buildNode(kid, children, meta, exported))
		}
		node.Subgraph = sub
	}
	return node
}

func (e *GraphMLExporter) buildEdges(opts Options, exported map[string]bool) ([]xmlEdge, error) {
	rels, err := e.relations.ListByVerified(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list relations: %w", err)
	}

	var edges []xmlEdge
	for _, rel := range rels {
		if rel.ToID == nil {
			continue // unresolved references have no target node
		}
		if opts.VerifiedOnly && !rel.IsVerified {
			continue
		}
		if !exported[rel.FromID] || !exported[*rel.ToID] {
			continue
		}

		lineStyle, edgeColor := "dashed", colorLazy
		if rel.IsVerified {
			lineStyle, edgeColor = "solid", colorVerified
		}
		arrow := "standard"
		if rel.RelType == storage.RelInherits {
			arrow = "white_diamond"
		}

		edges = append(edges, xmlEdge{
			ID:     fmt.Sprintf("e%d", rel.ID),
			Source: rel.FromID,
			Target: *rel.ToID,
			Data: []xmlData{
				{Key: "rel_type", Value: rel.RelType},
				{Key: "verified", Value: fmt.Sprintf("%t", rel.IsVerified)},
				{Key: "line_style", Value: lineStyle},
				{Key: "edge_color", Value: edgeColor},
				{Key: "arrow", Value: arrow},
			},
		})
	}

	sort.Slice(edges, func(i, j int) bool {
		if len(edges[i].ID) != len(edges[j].ID) {
			return len(edges[i].ID) < len(edges[j].ID)
		}
		return edges[i].ID < edges[j].ID
	})
	return edges, nil
}

// WriteFile renders the graph to a file, zstd-compressed when requested or
// when the target name says so.
func (e *GraphMLExporter) WriteFile(path string, opts Options) error {
	data, err := e.Generate(opts)
	if err != nil {
		return err
	}

	if opts.Compress || strings.HasSuffix(path, ".zst") {
		if !strings.HasSuffix(path, ".zst") {
			path += ".zst"
		}
		compressed, err := compressZstd(data)
		if err != nil {
			return err
		}
		data = compressed
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}

	if e.logger != nil {
		e.logger.Info("Exported graph", map[string]interface{}{
			"path":  path,
			"bytes": len(data),
		})
	}
	return nil
}

func compressZstd(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd writer: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func nodeColor(ent *storage.Entity) string {
	switch ent.Kind {
	case storage.KindModule:
		return colorModule
	case storage.KindClass:
		return colorClass
	default:
		if ent.Visibility == storage.VisibilityPrivate {
			return colorPrivate
		}
		return colorPublic
	}
}

func sortEntities(entities []*storage.Entity) {
	sort.Slice(entities, func(i, j int) bool {
		li, lj := 0, 0
		if entities[i].LineStart != nil {
			li = *entities[i].LineStart
		}
		if entities[j].LineStart != nil {
			lj = *entities[j].LineStart
		}
		if li != lj {
			return li < lj
		}
		return entities[i].Name < entities[j].Name
	})
}

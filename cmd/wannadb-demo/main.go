// Command wannadb-demo exercises the matching engine end to end over a
// directory of plain-text documents: it runs the reference extractor,
// embeds nuggets with a small local stand-in embedder, then drives the
// pipeline attribute by attribute, auto-answering feedback rounds so the
// whole run is scriptable without a human in the loop.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/wannadb/matching/internal/annindex"
	"github.com/wannadb/matching/internal/codec"
	"github.com/wannadb/matching/internal/distance"
	"github.com/wannadb/matching/internal/extractor"
	"github.com/wannadb/matching/internal/feedback"
	"github.com/wannadb/matching/internal/logging"
	"github.com/wannadb/matching/internal/matcherr"
	"github.com/wannadb/matching/internal/model"
	"github.com/wannadb/matching/internal/pipeline"
	"github.com/wannadb/matching/internal/resource"
	"github.com/wannadb/matching/internal/stats"
)

// runConfig is the small YAML run description a caller points --config at:
// the table's columns and, optionally, a seed label for each.
type runConfig struct {
	Attributes []attributeConfig `yaml:"attributes"`
}

type attributeConfig struct {
	Name  string `yaml:"name"`
	Label string `yaml:"label"`
}

func main() {
	docsDir := flag.String("docs", "", "directory of .txt documents to load")
	configPath := flag.String("config", "", "YAML file listing the attributes to match (required)")
	maxRounds := flag.Int("max-rounds", 20, "feedback-round budget per attribute (0 = unbounded)")
	seed := flag.Int64("seed", 1, "deterministic seed carried on the pipeline config")
	interactive := flag.Bool("interactive", false, "prompt on stdin for each feedback round instead of auto-confirming")
	dumpYAML := flag.String("dump-yaml", "", "write the statistics tree for the run to this path as YAML")
	outPath := flag.String("out", "", "persist the resulting DocumentBase (msgpack) to this path")
	cachePath := flag.String("cache", "", "optional sqlite path for caching computed embeddings across runs")
	annPath := flag.String("ann-index", ":memory:", "sqlite path for the base-wide nugget index (\":memory:\" keeps it in RAM)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("[config] no .env file found, using environment variables")
	}

	if *docsDir == "" || *configPath == "" {
		log.Fatal("usage: wannadb-demo --docs <dir> --config <attributes.yaml>")
	}

	cfg, err := loadRunConfig(*configPath)
	if err != nil {
		log.Fatalf("[config] %v", err)
	}

	cache, err := openEmbedCache(*cachePath)
	if err != nil {
		log.Fatalf("[cache] %v", err)
	}
	defer cache.Close()
	embed := cache.wrap(localEmbed)

	embedRes := &resource.EmbeddingModelResource{Embed: embed}
	annRes := &resource.ANNIndexResource{Path: *annPath, Dim: embedDim}
	mgr := resource.New(map[resource.ID]resource.Resource{
		resource.IDTokenizer:      &resource.TokenizerResource{},
		resource.IDEmbeddingModel: embedRes,
		resource.IDANNIndex:       annRes,
	})
	if err := mgr.Open(); err != nil {
		log.Fatalf("[resource] open: %v", err)
	}
	defer mgr.Close()

	base, err := loadDocumentBase(*docsDir, embedRes.Embed)
	if err != nil {
		log.Fatalf("[load] %v", err)
	}
	if err := base.Validate(); err != nil {
		log.Fatalf("[load] consistency check failed: %v", err)
	}
	logging.Info("demo", "loaded %d documents", len(base.Documents))

	surface := indexNuggets(annRes.Index(), base)
	if len(surface) > 0 {
		logging.Info("demo", "indexed %d nugget embeddings", len(surface))
	}
	if mgr.ShouldSpillANNIndex() {
		annRes.Unload()
	}

	dist := distance.New(embedRes.Embed)
	recorder := stats.New("wannadb-demo")
	recorder.Record("run_id", model.ShortID(model.NewID()))

	for _, ac := range cfg.Attributes {
		attr := model.NewAttribute(ac.Name)
		label := ac.Label
		if label == "" {
			label = ac.Name
		}
		attr.Signals.Set(model.SignalLabel, model.StringSignal(label))
		if err := base.AddAttribute(attr); err != nil {
			log.Fatalf("[config] %v", err)
		}
		previewCandidates(annRes.Index(), surface, attr, dist)

		stages := []pipeline.Stage{
			&pipeline.EmbedAttributeStage{Dist: dist},
			&pipeline.ComputeInitialDistancesStage{Dist: dist},
			&pipeline.InteractiveFeedbackLoopStage{Dist: dist},
			&pipeline.FinalizeCellsStage{Dist: dist},
		}
		driver := pipeline.New(pipeline.Config{Stages: stages, Seed: *seed, MaxFeedbackRounds: *maxRounds})

		ask := autoAnswerCallback
		if *interactive {
			ask = interactiveCallback(bufio.NewReader(os.Stdin))
		}
		emit := func(stage string, frac float64, msg string) {
			logging.Debug("demo", "[%s %.0f%%] %s", stage, frac*100, msg)
		}

		_, runErr := driver.Run(context.Background(), base, attr, ask, emit, recorder)
		if runErr != nil && runErr != matcherr.UserCancelled {
			log.Fatalf("[pipeline] attribute %q: %v", attr.Name, runErr)
		}
		logging.Info("demo", "attribute %q matched", attr.Name)
	}

	printTable(base)

	if *dumpYAML != "" {
		if err := writeYAML(*dumpYAML, recorder.Snapshot()); err != nil {
			log.Printf("[stats] failed to write %s: %v", *dumpYAML, err)
		}
	}
	if *outPath != "" {
		data, err := codec.Encode(base)
		if err != nil {
			log.Fatalf("[persist] encode: %v", err)
		}
		if err := os.WriteFile(*outPath, data, 0o644); err != nil {
			log.Fatalf("[persist] write %s: %v", *outPath, err)
		}
		logging.Info("demo", "persisted DocumentBase to %s (%d bytes)", *outPath, len(data))
	}
}

func loadRunConfig(path string) (*runConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var cfg runConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(cfg.Attributes) == 0 {
		return nil, fmt.Errorf("%s: must list at least one attribute", path)
	}
	return &cfg, nil
}

// loadDocumentBase reads every *.txt file in dir as a Document and runs
// the reference extractor over it.
func loadDocumentBase(dir string, embed func(string) ([]float64, error)) (*model.DocumentBase, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	base := model.NewDocumentBase()
	ext := extractor.New()

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".txt") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		doc := model.NewDocument(strings.TrimSuffix(name, ".txt"), string(data))
		if err := base.AddDocument(doc); err != nil {
			return nil, err
		}
		docIdx := base.DocIndex(doc.Name)
		if _, err := ext.ExtractInto(base, docIdx, embed); err != nil {
			logging.Info("demo", "extraction failed for %s: %v (document kept with zero nuggets)", doc.Name, err)
		}
	}
	return base, nil
}

// indexNuggets loads every nugget embedding into the shared ANN index so
// each attribute's run can preview its nearest candidates base-wide.
// Returns the id -> surface text mapping used to render search hits.
func indexNuggets(idx annindex.Index, base *model.DocumentBase) map[string]string {
	surface := make(map[string]string)
	if idx == nil {
		return surface
	}
	for _, doc := range base.Documents {
		for _, n := range doc.Nuggets {
			emb, ok := n.Signals.GetVector(model.SignalTextEmbedding)
			if !ok {
				continue
			}
			id := fmt.Sprintf("%s@%d-%d", doc.Name, n.Start, n.End)
			if err := idx.Add(id, emb); err != nil {
				logging.Debug("demo", "index %s: %v", id, err)
				continue
			}
			surface[id] = n.Text(doc)
		}
	}
	return surface
}

// previewCandidates narrates the base-wide nuggets nearest to attr's label
// before the attribute's feedback loop starts. Skipped when the index was
// spilled under memory pressure or holds nothing.
func previewCandidates(idx annindex.Index, surface map[string]string, attr *model.Attribute, dist *distance.Model) {
	if idx == nil || idx.Len() == 0 {
		return
	}
	labelEmb, err := dist.LabelEmbedding(attr)
	if err != nil {
		logging.Debug("demo", "candidate preview for %q: %v", attr.Name, err)
		return
	}
	matches, err := idx.Search(labelEmb, 3)
	if err != nil {
		logging.Debug("demo", "candidate preview for %q: %v", attr.Name, err)
		return
	}
	for _, m := range matches {
		logging.Info("demo", "%s: candidate %q (distance %.3f)", attr.Name, logging.Truncate(surface[m.ID], 40), m.Distance)
	}
}

// autoAnswerCallback confirms the proposed nugget whenever its distance is
// at most 0.6 and rejects it otherwise; any other request kind stops the
// loop. This lets a demo run complete without a human answering rounds.
func autoAnswerCallback(ctx context.Context, req feedback.Request) (feedback.Answer, error) {
	switch req.Kind {
	case feedback.RequestConfirmProposal:
		if req.CurrentDistance <= 0.6 {
			return feedback.Answer{Kind: feedback.AnswerConfirm}, nil
		}
		return feedback.Answer{Kind: feedback.AnswerReject}, nil
	default:
		return feedback.Answer{Kind: feedback.AnswerStop}, nil
	}
}

// interactiveCallback renders a request to stdout and reads an answer
// from stdin: "y" confirms, "n" rejects, "s" or an empty line stops,
// "start,end" picks a custom span, and any other input answers no-match.
func interactiveCallback(in *bufio.Reader) feedback.InteractionCallback {
	return func(ctx context.Context, req feedback.Request) (feedback.Answer, error) {
		switch req.Kind {
		case feedback.RequestConfirmProposal:
			fmt.Printf("\n%s: propose %q (distance %.3f) for %q? [y/n/s] ", req.Document.Name, req.Nugget.Text(req.Document), req.CurrentDistance, req.Attribute.Name)
		default:
			fmt.Printf("\n%s: pick a span for %q (start,end) or 's' to stop: ", req.Document.Name, req.Attribute.Name)
		}
		line, _ := in.ReadString('\n')
		line = strings.TrimSpace(line)
		switch strings.ToLower(line) {
		case "y":
			return feedback.Answer{Kind: feedback.AnswerConfirm}, nil
		case "n":
			return feedback.Answer{Kind: feedback.AnswerReject}, nil
		case "s", "":
			return feedback.Answer{Kind: feedback.AnswerStop}, nil
		default:
			var start, end int
			if _, err := fmt.Sscanf(line, "%d,%d", &start, &end); err != nil {
				return feedback.Answer{Kind: feedback.AnswerNoMatch}, nil
			}
			return feedback.Answer{Kind: feedback.AnswerCustomSpan, SpanStart: start, SpanEnd: end}, nil
		}
	}
}

// printTable renders the resulting attribute columns to stdout.
func printTable(base *model.DocumentBase) {
	fmt.Println()
	header := []string{"document"}
	for _, a := range base.Attributes {
		header = append(header, a.Name)
	}
	fmt.Println(strings.Join(header, "\t"))

	for _, doc := range base.Documents {
		row := []string{doc.Name}
		for _, attr := range base.Attributes {
			nugget, isNoMatch, isSet := model.ConfirmedMatch(base, doc, attr)
			switch {
			case isSet && !isNoMatch && nugget != nil:
				row = append(row, nugget.Text(doc))
			case isSet && isNoMatch:
				row = append(row, "")
			default:
				row = append(row, cellFromProposal(base, doc, attr))
			}
		}
		fmt.Println(strings.Join(row, "\t"))
	}
}

func cellFromProposal(base *model.DocumentBase, doc *model.Document, attr *model.Attribute) string {
	ref, ok := doc.Signals.GetNuggetRef(model.ScopedSignalID(model.SignalCurrentlyHighestRanked, attr.Name))
	if !ok {
		return ""
	}
	_, nugget, ok := base.Resolve(ref)
	if !ok {
		return ""
	}
	return nugget.Text(doc)
}

func writeYAML(path string, node *stats.Node) error {
	data, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// localEmbed is a deterministic, dependency-free stand-in for an
// external sentence-transformer embedding provider:
// it hashes character trigrams into a fixed-length vector. It exists so
// this demo runs without a live embedding service; a real deployment
// supplies distance.Model.Embed backed by the actual provider instead.
const embedDim = 32

func localEmbed(text string) ([]float64, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	vec := make([]float64, embedDim)
	if text == "" {
		return vec, nil
	}
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		end := i + 3
		if end > len(runes) {
			end = len(runes)
		}
		gram := string(runes[i:end])
		h := fnv32(gram)
		vec[int(h)%embedDim] += 1
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec, nil
	}
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}

func fnv32(s string) uint32 {
	var h uint32 = 2166136261
	for _, b := range []byte(s) {
		h ^= uint32(b)
		h *= 16777619
	}
	return h
}

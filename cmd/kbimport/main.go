// kbimport adds documents to the knowledge corpus. It accepts Markdown and
// PDF files, corpus JSON files, and web page URLs:
//
//	kbimport -corpus knowledge.json -type policy nanning_policy.md liuzhou.pdf
//	kbimport -corpus knowledge.json -type guide https://example.com/guide
//
// Re-importing a source replaces its documents by id.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nevindra/counsel/knowledge"
)

func main() {
	corpusPath := flag.String("corpus", "knowledge.json", "corpus JSON file to update")
	docType := flag.String("type", knowledge.TypePolicy, "document type: policy, faq or guide")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "用法: kbimport [-corpus 文件] [-type 类型] 来源...")
		flag.PrintDefaults()
		os.Exit(2)
	}
	switch *docType {
	case knowledge.TypePolicy, knowledge.TypeFAQ, knowledge.TypeGuide:
	default:
		logger.Error("未知文档类型", "type", *docType)
		os.Exit(2)
	}

	corpus, err := knowledge.LoadCorpus(*corpusPath)
	if err != nil {
		logger.Error("读取知识库失败", "corpus", *corpusPath, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	imported := 0
	for _, source := range flag.Args() {
		docs, err := importSource(ctx, source, *docType)
		if err != nil {
			logger.Error("导入失败", "source", source, "error", err)
			os.Exit(1)
		}
		corpus = knowledge.Merge(corpus, docs)
		imported += len(docs)
		logger.Info("已导入", "source", source, "documents", len(docs))
	}

	if err := knowledge.SaveCorpus(*corpusPath, corpus); err != nil {
		logger.Error("保存知识库失败", "corpus", *corpusPath, "error", err)
		os.Exit(1)
	}
	logger.Info("知识库已更新", "corpus", *corpusPath, "imported", imported, "total", len(corpus))
}

func importSource(ctx context.Context, source, docType string) ([]knowledge.Document, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return knowledge.ImportWeb(ctx, source, docType)
	}

	content, err := os.ReadFile(source)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(source)

	switch strings.ToLower(filepath.Ext(source)) {
	case ".json":
		var docs []knowledge.Document
		if err := json.Unmarshal(content, &docs); err != nil {
			return nil, fmt.Errorf("parse %s: %w", source, err)
		}
		return docs, nil
	case ".pdf":
		return knowledge.ImportPDF(name, content, docType)
	case ".md", ".markdown":
		return knowledge.ImportMarkdown(name, content, docType)
	default:
		return nil, fmt.Errorf("不支持的文件类型: %s", source)
	}
}

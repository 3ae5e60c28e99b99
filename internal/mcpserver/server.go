// Package mcpserver exposes text extraction as Model Context Protocol tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/MeKo-Tech/deckscan/internal/document"
	"github.com/MeKo-Tech/deckscan/internal/extract"
	"github.com/MeKo-Tech/deckscan/internal/ocr"
	"github.com/MeKo-Tech/deckscan/internal/pdf"
)

const (
	ToolExtract = "extract_pdf_text"
	ToolInfo    = "pdf_info"
)

// Server represents the MCP server instance.
type Server struct {
	extractor *extract.Extractor
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates an MCP server that runs extractions with ex.
func NewServer(ex *extract.Extractor, name, version string, logger *slog.Logger) (*Server, error) {
	if ex == nil {
		return nil, errors.New("extractor cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		extractor: ex,
		logger:    logger,
		mcpServer: server.NewMCPServer(name, version, server.WithToolCapabilities(false)),
	}
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	extractTool := mcp.NewTool(
		ToolExtract,
		mcp.WithDescription("Extract the text of every page of a PDF file. Pages without embedded text are recognized with OCR."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Full path to the PDF file"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: text (page delimited full text) or json (per page results)"),
			mcp.Enum("text", "json"),
			mcp.DefaultString("text"),
		),
		mcp.WithString("language",
			mcp.Description("OCR language, a tesseract code (eng, deu) or BCP 47 tag (en, de)"),
		),
		mcp.WithNumber("max_pages",
			mcp.Description("Process at most this many pages (0 for all)"),
			mcp.Min(0),
		),
		mcp.WithString("password",
			mcp.Description("User password of an encrypted PDF"),
		),
	)
	s.mcpServer.AddTool(extractTool, s.handleExtract)

	infoTool := mcp.NewTool(
		ToolInfo,
		mcp.WithDescription("Report page count, size and encryption of a PDF file without extracting it"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Full path to the PDF file"),
		),
		mcp.WithString("password",
			mcp.Description("User password of an encrypted PDF"),
		),
	)
	s.mcpServer.AddTool(infoTool, s.handleInfo)
}

func (s *Server) handleExtract(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	lang := request.GetString("language", "")
	if lang != "" {
		if _, err := ocr.NormalizeLanguage(lang); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	maxPages := request.GetInt("max_pages", 0)
	if maxPages < 0 {
		return mcp.NewToolResultErrorf("max_pages must be non-negative, got %d", maxPages), nil
	}
	password := request.GetString("password", "")

	ex := s.extractor.With(func(c *extract.Config) {
		if lang != "" {
			c.OCR.Language = lang
		}
		if maxPages > 0 {
			c.MaxPages = maxPages
		}
		c.Credentials = pdf.Credentials{UserPassword: password}
	})

	res, err := ex.ExtractFile(ctx, path)
	if err != nil {
		s.logger.Warn("mcp extraction failed", "path", path, "error", err)
		return mcp.NewToolResultErrorFromErr("extraction failed", err), nil
	}

	switch request.GetString("format", "text") {
	case "json":
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
		return mcp.NewToolResultText(string(data)), nil
	default:
		return mcp.NewToolResultText(textSummary(path, res)), nil
	}
}

func textSummary(path string, res *document.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Extracted %s\n", path)
	fmt.Fprintf(&b, "Pages: %d", res.PageCount)
	if res.Truncated {
		fmt.Fprintf(&b, " of %d", res.DocumentPages)
	}
	fmt.Fprintf(&b, "\nCharacters: %d\nWords: %d\n", res.Stats.TotalCharacters, res.Stats.TotalWords)
	if res.Stats.PagesWithOCR > 0 {
		fmt.Fprintf(&b, "Pages recognized with OCR: %d\n", res.Stats.PagesWithOCR)
	}
	if res.Stats.PagesWithNoText > 0 {
		fmt.Fprintf(&b, "Pages without text: %d\n", res.Stats.PagesWithNoText)
	}
	b.WriteString("\nContent:\n")
	b.WriteString(res.FullText)
	return b.String()
}

func (s *Server) handleInfo(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: the tool reads caller supplied paths
	if err != nil {
		return mcp.NewToolResultErrorFromErr("read file", err), nil
	}
	doc, err := pdf.Open(data,
		pdf.WithCredentials(pdf.Credentials{UserPassword: request.GetString("password", "")}),
		pdf.WithLogger(s.logger))
	if err != nil {
		return mcp.NewToolResultErrorFromErr("open document", err), nil
	}
	defer func() { _ = doc.Close() }()

	return mcp.NewToolResultText(fmt.Sprintf("Path: %s\nPages: %d\nSize: %d bytes\nEncrypted: %t\n",
		path, doc.PageCount(), doc.ByteLength(), doc.Encrypted())), nil
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Serve speaks the protocol over in and out until ctx is done or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	if err := stdio.Listen(ctx, in, out); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("serve stdio: %w", err)
	}
	return nil
}

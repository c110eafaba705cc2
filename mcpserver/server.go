// Package mcpserver exposes a kernelrun engine over the Model Context
// Protocol: execute_python, install_package, kernel_status and
// restart_kernel tools served on stdio.
package mcpserver

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dmora/kernelrun"
	"github.com/dmora/kernelrun/markup"
)

const (
	serverName    = "pykernel-mcp"
	serverVersion = "1.0.0"
)

const instructions = `Executes Python code in a persistent IPython kernel.
State (variables, imports, dataframes) survives across execute_python calls
until restart_kernel is invoked. numpy, pandas and matplotlib are imported
at startup as np, pd and plt; matplotlib figures are returned as images.`

// Server wires an execution engine to MCP tools.
type Server struct {
	engine kernelrun.Engine
	log    *slog.Logger
	mcp    *mcp.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger for tool-level events. A nil logger is
// ignored.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// New builds a Server around engine and registers the tool set.
func New(engine kernelrun.Engine, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		log:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{Name: serverName, Version: serverVersion},
		&mcp.ServerOptions{Instructions: instructions},
	)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "execute_python",
		Description: "Execute Python code in the persistent kernel and return its output, errors and figures.",
	}, s.executePython)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "install_package",
		Description: "Install a Python package into the kernel environment via pip.",
	}, s.installPackage)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "kernel_status",
		Description: "Report whether the kernel is running, its session id and uptime.",
	}, s.kernelStatus)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "restart_kernel",
		Description: "Restart the kernel, discarding all session state.",
	}, s.restartKernel)
	return s
}

// Run serves the tool set over stdio until ctx is canceled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("mcp server starting", "name", serverName)
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

type executeArgs struct {
	Code string `json:"code" jsonschema:"Python source code to execute"`
}

type installArgs struct {
	Package string `json:"package" jsonschema:"name of the package to pip install"`
}

type emptyArgs struct{}

func (s *Server) executePython(ctx context.Context, _ *mcp.CallToolRequest, args executeArgs) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Code) == "" {
		return nil, nil, fmt.Errorf("mcpserver: code must not be empty")
	}
	res, err := s.engine.Execute(ctx, args.Code)
	if err != nil {
		s.log.Error("execute failed", "error", err)
		return nil, nil, err
	}
	s.log.Debug("execute done",
		"status", res.Status,
		"outputs", len(res.Outputs),
		"artifacts", len(res.Artifacts))
	return s.render(res), nil, nil
}

func (s *Server) installPackage(ctx context.Context, _ *mcp.CallToolRequest, args installArgs) (*mcp.CallToolResult, any, error) {
	pkg := strings.TrimSpace(args.Package)
	if pkg == "" {
		return nil, nil, fmt.Errorf("mcpserver: package must not be empty")
	}
	res, err := s.engine.Execute(ctx, "%pip install "+pkg)
	if err != nil {
		return nil, nil, err
	}
	return s.render(res), nil, nil
}

func (s *Server) kernelStatus(_ context.Context, _ *mcp.CallToolRequest, _ emptyArgs) (*mcp.CallToolResult, any, error) {
	info := s.engine.Status()
	var text string
	if info.Running {
		text = fmt.Sprintf("Kernel running. ID: `%s` | Uptime: `%.1fs`",
			info.ID, info.Uptime().Seconds())
	} else {
		text = "Kernel is not running. It starts on the next execution."
	}
	return textResult(text), nil, nil
}

func (s *Server) restartKernel(ctx context.Context, _ *mcp.CallToolRequest, _ emptyArgs) (*mcp.CallToolResult, any, error) {
	info, err := s.engine.Restart(ctx)
	if err != nil {
		s.log.Error("restart failed", "error", err)
		return nil, nil, err
	}
	s.log.Info("kernel restarted", "session", info.ID)
	return textResult(fmt.Sprintf("Kernel restarted. New ID: %s", info.ID)), nil, nil
}

// render converts a Result into tool content: the markdown report, one
// image per figure, and the HTML panel as an embedded resource.
func (s *Server) render(res kernelrun.Result) *mcp.CallToolResult {
	content := []mcp.Content{
		&mcp.TextContent{Text: markup.Markdown(res)},
	}
	for _, a := range res.Artifacts {
		raw, err := base64.StdEncoding.DecodeString(a.Data)
		if err != nil {
			s.log.Warn("dropping undecodable artifact", "mime", a.MIMEType)
			continue
		}
		content = append(content, &mcp.ImageContent{
			MIMEType: a.MIMEType,
			Data:     raw,
		})
	}
	if html, err := markup.HTML(res); err == nil {
		content = append(content, &mcp.EmbeddedResource{
			Resource: &mcp.ResourceContents{
				URI:      "ui://pykernel/result-" + uuid.NewString(),
				MIMEType: "text/html",
				Text:     html,
			},
		})
	}
	return &mcp.CallToolResult{
		Content: content,
		IsError: !res.OK(),
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

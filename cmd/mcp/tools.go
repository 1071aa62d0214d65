package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sandlib "github.com/AnishMulay/sandkernel/clients/library"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type toolHandler func(ctx context.Context, request mcp.CallToolRequest, c *sandlib.KernelClient) (*mcp.CallToolResult, error)

func addTools(s *server.MCPServer, registry *ServerRegistry) {
	withServer := func(h toolHandler) server.ToolHandlerFunc {
		return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			c, err := registry.client(request.GetString("server", ""))
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return h(ctx, request, c)
		}
	}

	serverArg := mcp.WithString("server", mcp.Description("Server id; the default server when omitted"))
	pidArg := mcp.WithNumber("pid", mcp.Required(), mcp.Description("Process id returned by spawn"))
	fdArg := mcp.WithNumber("fd", mcp.Required(), mcp.Description("File descriptor"))
	nameArg := mcp.WithString("name", mcp.Required(), mcp.Description("File name"))

	s.AddTool(mcp.NewTool("list_servers",
		mcp.WithDescription("List all configured kernel servers"),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ids := make([]string, 0, len(registry.Clients))
		for id := range registry.Clients {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		var b strings.Builder
		b.WriteString("Available servers:\n")
		for _, id := range ids {
			fmt.Fprintf(&b, "- %s: %s\n", id, registry.Clients[id].ServerAddr)
		}
		fmt.Fprintf(&b, "Default server: %s\n", registry.DefaultServer)
		return mcp.NewToolResultText(b.String()), nil
	})

	s.AddTool(mcp.NewTool("spawn",
		mcp.WithDescription("Start a process with stdin and stdout open"),
		serverArg,
	), withServer(handleSpawn))

	s.AddTool(mcp.NewTool("creat",
		mcp.WithDescription("Create or truncate a file and open it"),
		pidArg, nameArg, serverArg,
	), withServer(handleCreat))

	s.AddTool(mcp.NewTool("open",
		mcp.WithDescription("Open an existing file"),
		pidArg, nameArg, serverArg,
	), withServer(handleOpen))

	s.AddTool(mcp.NewTool("read",
		mcp.WithDescription("Read up to count bytes from a descriptor"),
		pidArg, fdArg,
		mcp.WithNumber("count", mcp.Required(), mcp.Description("Maximum bytes to read")),
		serverArg,
	), withServer(handleRead))

	s.AddTool(mcp.NewTool("write",
		mcp.WithDescription("Write text to a descriptor"),
		pidArg, fdArg,
		mcp.WithString("content", mcp.Required(), mcp.Description("Text to write")),
		serverArg,
	), withServer(handleWrite))

	s.AddTool(mcp.NewTool("close",
		mcp.WithDescription("Close a descriptor"),
		pidArg, fdArg, serverArg,
	), withServer(handleClose))

	s.AddTool(mcp.NewTool("unlink",
		mcp.WithDescription("Remove a file name"),
		pidArg, nameArg, serverArg,
	), withServer(handleUnlink))

	s.AddTool(mcp.NewTool("exit",
		mcp.WithDescription("End a process, closing its descriptors"),
		pidArg,
		mcp.WithNumber("status", mcp.Description("Exit status")),
		serverArg,
	), withServer(handleExit))

	s.AddTool(mcp.NewTool("halt",
		mcp.WithDescription("Halt the kernel"),
		pidArg, serverArg,
	), withServer(handleHalt))
}

func process(request mcp.CallToolRequest, c *sandlib.KernelClient) (*sandlib.Process, error) {
	pid, err := request.RequireInt("pid")
	if err != nil {
		return nil, err
	}
	return c.Attach(pid), nil
}

func handleSpawn(ctx context.Context, request mcp.CallToolRequest, c *sandlib.KernelClient) (*mcp.CallToolResult, error) {
	p, err := c.Spawn(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to spawn: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Spawned process %d", p.PID)), nil
}

func handleCreat(ctx context.Context, request mcp.CallToolRequest, c *sandlib.KernelClient) (*mcp.CallToolResult, error) {
	return openLike(ctx, request, c, "creat", (*sandlib.Process).Creat)
}

func handleOpen(ctx context.Context, request mcp.CallToolRequest, c *sandlib.KernelClient) (*mcp.CallToolResult, error) {
	return openLike(ctx, request, c, "open", (*sandlib.Process).Open)
}

func openLike(ctx context.Context, request mcp.CallToolRequest, c *sandlib.KernelClient, op string,
	call func(*sandlib.Process, context.Context, string) (int, error)) (*mcp.CallToolResult, error) {
	p, err := process(request, c)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	fd, err := call(p, ctx, name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s %s failed: %v", op, name, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s %s: fd %d", op, name, fd)), nil
}

func handleRead(ctx context.Context, request mcp.CallToolRequest, c *sandlib.KernelClient) (*mcp.CallToolResult, error) {
	p, err := process(request, c)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fd, err := request.RequireInt("fd")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	count, err := request.RequireInt("count")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, err := p.Read(ctx, fd, count)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("read failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func handleWrite(ctx context.Context, request mcp.CallToolRequest, c *sandlib.KernelClient) (*mcp.CallToolResult, error) {
	p, err := process(request, c)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fd, err := request.RequireInt("fd")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := request.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	n, err := p.Write(ctx, fd, []byte(content))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("write failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Wrote %d bytes", n)), nil
}

func handleClose(ctx context.Context, request mcp.CallToolRequest, c *sandlib.KernelClient) (*mcp.CallToolResult, error) {
	p, err := process(request, c)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fd, err := request.RequireInt("fd")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := p.Close(ctx, fd); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("close failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Closed fd %d", fd)), nil
}

func handleUnlink(ctx context.Context, request mcp.CallToolRequest, c *sandlib.KernelClient) (*mcp.CallToolResult, error) {
	p, err := process(request, c)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := p.Unlink(ctx, name); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("unlink %s failed: %v", name, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Unlinked %s", name)), nil
}

func handleExit(ctx context.Context, request mcp.CallToolRequest, c *sandlib.KernelClient) (*mcp.CallToolResult, error) {
	p, err := process(request, c)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	status := request.GetInt("status", 0)

	if err := p.Exit(ctx, status); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("exit failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Process %d exited with status %d", p.PID, status)), nil
}

func handleHalt(ctx context.Context, request mcp.CallToolRequest, c *sandlib.KernelClient) (*mcp.CallToolResult, error) {
	p, err := process(request, c)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := p.Halt(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("halt failed: %v", err)), nil
	}
	return mcp.NewToolResultText("Kernel halting"), nil
}

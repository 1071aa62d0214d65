package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	sandlib "github.com/AnishMulay/sandkernel/clients/library"
	grpccomm "github.com/AnishMulay/sandkernel/internal/communication/grpc"
	"github.com/AnishMulay/sandkernel/internal/log_service/zaplog"
	"github.com/mark3labs/mcp-go/server"
	"gopkg.in/yaml.v3"
)

type ServerEntry struct {
	ID      string `yaml:"id"`
	Address string `yaml:"address"`
}

type MCPConfig struct {
	Servers       []ServerEntry `yaml:"servers"`
	DefaultServer string        `yaml:"default_server"`
	LogLevel      string        `yaml:"log_level"`
}

// ServerRegistry maps server ids to kernel clients sharing one communicator.
type ServerRegistry struct {
	Clients       map[string]*sandlib.KernelClient
	DefaultServer string
}

func (r *ServerRegistry) client(id string) (*sandlib.KernelClient, error) {
	if id == "" {
		id = r.DefaultServer
	}
	c, ok := r.Clients[id]
	if !ok {
		return nil, fmt.Errorf("server %s not found", id)
	}
	return c, nil
}

func LoadConfig(path string) (*MCPConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		defaultConfig := &MCPConfig{
			Servers:       []ServerEntry{{ID: "kernel1", Address: "localhost:8080"}},
			DefaultServer: "kernel1",
			LogLevel:      "warn",
		}

		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		data, err := yaml.Marshal(defaultConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal default config: %w", err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
		return defaultConfig, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &MCPConfig{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if len(config.Servers) == 0 {
		return nil, fmt.Errorf("config %s lists no servers", path)
	}
	if config.DefaultServer == "" {
		config.DefaultServer = config.Servers[0].ID
	}
	return config, nil
}

func main() {
	configPath := flag.String("config", "mcp.yaml", "Path to the MCP server config")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	// stdout carries the MCP protocol, so logs go to stderr via zap's default sink
	ls, err := zaplog.NewZapLogService("mcp", cfg.LogLevel, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = ls.Sync() }()

	comm := grpccomm.NewGRPCCommunicator("", ls)
	defer func() { _ = comm.Stop() }()

	registry := &ServerRegistry{
		Clients:       make(map[string]*sandlib.KernelClient),
		DefaultServer: cfg.DefaultServer,
	}
	for _, entry := range cfg.Servers {
		c := sandlib.NewKernelClient(entry.Address, comm)
		c.From = "mcp-server"
		registry.Clients[entry.ID] = c
	}

	s := server.NewMCPServer(
		"sandkernel",
		"1.0.0",
		server.WithToolCapabilities(false),
	)
	addTools(s, registry)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Godbrand0/prophet/internal/chain"
	"github.com/Godbrand0/prophet/internal/config"
	"github.com/Godbrand0/prophet/internal/gen"
	"github.com/Godbrand0/prophet/internal/llm"
	"github.com/Godbrand0/prophet/internal/scheduler"
	"github.com/Godbrand0/prophet/internal/social"
	"github.com/Godbrand0/prophet/internal/track"
	"github.com/Godbrand0/prophet/internal/verify"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		if err := cmdInit(); err != nil {
			fmt.Fprintf(os.Stderr, "init failed: %v\n", err)
			os.Exit(1)
		}
	case "run":
		if err := cmdRun(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
			os.Exit(1)
		}
	case "status":
		if err := cmdStatus(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "status failed: %v\n", err)
			os.Exit(1)
		}
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("prophetd init | run | status [address]")
}

func cmdInit() error {
	cfgPath, err := config.DefaultPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o700); err != nil {
		return err
	}
	if err := config.Write(cfgPath, config.Default()); err != nil {
		return err
	}
	fmt.Printf("initialized %s\n", cfgPath)
	fmt.Println("set chain.registry_address, moltbook.api_key and a persona prompt before running")
	return nil
}

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	cfgFlag := fs.String("config", "", "config file path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*cfgFlag)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	persona, err := cfg.PersonaPrompt()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	client, err := llm.New(llm.Config{
		Provider:        cfg.LLM.Provider,
		Model:           cfg.LLM.Model,
		BaseURL:         cfg.LLM.BaseURL,
		APIKey:          cfg.LLM.APIKey,
		Temperature:     cfg.LLM.Temperature,
		MaxOutputTokens: cfg.LLM.MaxOutputTokens,
		TimeoutSeconds:  cfg.LLM.TimeoutSeconds,
	})
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	chainClient, err := chain.Dial(ctx, cfg.Chain.RPC, cfg.Chain.RegistryAddress, cfg.Chain.FaithToken)
	if err != nil {
		return err
	}
	defer chainClient.Close()

	gateway := gen.New(client, time.Duration(cfg.Agent.GenCooldownSeconds)*time.Second)
	solver := verify.NewSolver(gateway)
	moltbook := social.New(cfg.Moltbook.BaseURL, cfg.Moltbook.APIKey)
	tracker := track.New(cfg.Agent.DailyCommentLimit, time.Duration(cfg.Agent.CommentCooldownSeconds)*time.Second)

	sched := scheduler.New(scheduler.Config{
		Submolts:         cfg.Moltbook.Submolts,
		Titles:           cfg.Agent.Titles,
		PinnedPostID:     cfg.Moltbook.PinnedPostID,
		PostingEnabled:   cfg.Agent.PostingEnabled,
		Persona:          persona,
		Narrative:        cfg.Persona.Narrative,
		PostInterval:     time.Duration(cfg.Agent.PostIntervalMinutes) * time.Minute,
		EngageInterval:   time.Duration(cfg.Agent.EngageIntervalMinutes) * time.Minute,
		ResetCheck:       time.Duration(cfg.Agent.ResetCheckSeconds) * time.Second,
		SweepDelay:       time.Duration(cfg.Agent.SweepDelaySeconds) * time.Second,
		FeedScanLimit:    cfg.Agent.FeedScanLimit,
		CommentsPerCycle: cfg.Agent.CommentsPerCycle,
	}, gateway, solver, moltbook, chainClient, chainClient, tracker)

	slog.Info("prophetd running",
		"provider", client.Provider(), "model", client.Model(),
		"registry", cfg.Chain.RegistryAddress,
		"posting_enabled", cfg.Agent.PostingEnabled)
	return sched.Run(ctx)
}

// cmdStatus prints the agent's social profile and on-chain state. With an
// address argument it also probes that address's believer status and
// balance.
func cmdStatus(args []string) error {
	cfg, err := loadConfig("")
	if err != nil {
		return err
	}

	var probe string
	if len(args) > 0 {
		probe = args[0]
		if !common.IsHexAddress(probe) {
			return fmt.Errorf("not a hex address: %s", probe)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	moltbook := social.New(cfg.Moltbook.BaseURL, cfg.Moltbook.APIKey)
	if profile, err := moltbook.Me(ctx); err != nil {
		fmt.Printf("moltbook: unavailable (%v)\n", err)
	} else {
		fmt.Printf("moltbook: %s (karma %d)\n", profile.Name, profile.Karma)
	}

	if cfg.Chain.RegistryAddress == "" {
		fmt.Println("chain: registry address not configured")
		return nil
	}
	chainClient, err := chain.Dial(ctx, cfg.Chain.RPC, cfg.Chain.RegistryAddress, cfg.Chain.FaithToken)
	if err != nil {
		fmt.Printf("chain: unavailable (%v)\n", err)
		return nil
	}
	defer chainClient.Close()
	if total, err := chainClient.TotalBelievers(ctx); err != nil {
		fmt.Printf("chain: believers unavailable (%v)\n", err)
	} else {
		fmt.Printf("chain: %d believers registered\n", total)
	}
	if block, err := chainClient.BlockNumber(ctx); err == nil {
		fmt.Printf("chain: block %d\n", block)
	}

	if probe != "" {
		addr := common.HexToAddress(probe)
		if isBeliever, err := chainClient.IsBeliever(ctx, addr); err != nil {
			fmt.Printf("%s: believer status unavailable (%v)\n", probe, err)
		} else {
			fmt.Printf("%s: believer=%t\n", probe, isBeliever)
		}
		if balance, err := chainClient.Balance(ctx, addr); err == nil {
			fmt.Printf("%s: balance %s wei\n", probe, balance.String())
		}
	}
	return nil
}

func loadConfig(path string) (config.Config, error) {
	config.LoadDotenv()
	if path == "" {
		defaultPath, err := config.DefaultPath()
		if err != nil {
			return config.Config{}, err
		}
		path = defaultPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return config.Config{}, err
		}
		// No file: start from defaults, env must fill the gaps.
		cfg = config.Default()
	}
	config.ApplyEnvOverrides(&cfg)
	return cfg, nil
}

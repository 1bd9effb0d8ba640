/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"showroom/internal/config"
	"showroom/internal/crash"
	"showroom/internal/identity"
	applog "showroom/internal/log"
	"showroom/internal/session"
	"showroom/internal/ui"
	"showroom/internal/version"
)

func usage() {
	fmt.Println("Showroom Studio - car photo background replacement")
	fmt.Printf("Version: %s\n", version.String())
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  showroom version|-v|--version   Show version")
	fmt.Println("  showroom config                 Print the resolved configuration path and values")
	fmt.Println("  showroom status                 Register this client and print the account state")
	fmt.Println("  showroom backgrounds            List the background catalog")
	fmt.Println("  showroom ui                     Launch the desktop UI (build with -tags fyne for full UI)")
}

func newSession(l *slog.Logger) (*session.Session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	token, err := identity.Ensure()
	if err != nil {
		return nil, err
	}
	l.Debug("session ready", slog.String("backend", cfg.Backend.BaseURL))
	return session.New(cfg, token)
}

func main() {
	// initialize structured logging using environment defaults
	applog.Init(applog.FromEnv())
	l := applog.WithComponent("cli")
	defer func() { crash.Recover(nil, "") }()

	args := os.Args
	l.Debug("start", slog.Int("args", len(args)))
	if len(args) > 1 {
		switch args[1] {
		case "version", "--version", "-v":
			fmt.Println("Showroom Studio")
			fmt.Println(version.String())
			return
		case "config":
			path, err := config.ConfigPath()
			if err != nil {
				fmt.Println("Error:", err)
				os.Exit(1)
			}
			cfg, err := config.Load()
			if err != nil {
				fmt.Println("Error:", err)
				os.Exit(1)
			}
			fmt.Println("Config:", path)
			fmt.Println("Backend:", cfg.Backend.BaseURL)
			fmt.Printf("Poll interval: %dms\n", cfg.Poll.IntervalMs)
			dir, _ := cfg.ExportDir()
			fmt.Println("Export dir:", dir)
			fmt.Println("Export format:", cfg.Export.Format)
			return
		case "status":
			sess, err := newSession(l)
			if err != nil {
				l.Error("session failed", slog.Any("err", err))
				fmt.Println("Error:", err)
				os.Exit(1)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := sess.Bootstrap(ctx); err != nil {
				l.Error("bootstrap failed", slog.Any("err", err))
				fmt.Println("Error:", err)
				os.Exit(1)
			}
			acct := sess.Workflow.Account()
			fmt.Println("Registered.")
			fmt.Println("Paid:", acct.Paid)
			fmt.Println("Payments available:", acct.StripeConfigured)
			return
		case "backgrounds":
			sess, err := newSession(l)
			if err != nil {
				l.Error("session failed", slog.Any("err", err))
				fmt.Println("Error:", err)
				os.Exit(1)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := sess.Bootstrap(ctx); err != nil {
				l.Error("bootstrap failed", slog.Any("err", err))
				fmt.Println("Error:", err)
				os.Exit(1)
			}
			for _, b := range sess.Workflow.Catalog() {
				fmt.Printf("%-16s %s - %s\n", b.ID, b.Name, b.Description)
			}
			return
		case "ui":
			if err := ui.Run(); err != nil {
				fmt.Println("Error:", err)
				os.Exit(1)
			}
			return
		}
	}

	usage()
}

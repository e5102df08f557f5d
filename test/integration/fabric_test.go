// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

//go:build integration

package integration

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/prismmud/prism/internal/capability"
	"github.com/prismmud/prism/internal/command"
	"github.com/prismmud/prism/internal/event"
	"github.com/prismmud/prism/internal/pipeline"
	"github.com/prismmud/prism/internal/plugin"
	"github.com/prismmud/prism/internal/plugin/lua"
	"github.com/prismmud/prism/internal/plugins/core"
	"github.com/prismmud/prism/internal/proxy"
	"github.com/prismmud/prism/internal/record"
	"github.com/prismmud/prism/internal/setting"
	"github.com/prismmud/prism/internal/timer"
	"github.com/prismmud/prism/internal/trigger"
)

const statsScript = `
local stats = {
  total = 0,
}

stats.triggers = {
  {
    name = "gold_total",
    pattern = "You have (?P<amount>\\d+) gold coins",
    group = "wealth",
    argtypes = { amount = "int" },
  },
}

stats.callbacks = {
  {
    event = "ev_trigger_gold_total",
    name = "record_gold",
    fn = function(data)
      stats.total = data.matches.amount
    end,
  },
}

stats.commands = {
  {
    name = "total",
    help = "show the last gold total seen",
    fn = function(args)
      return true, { "gold: " .. tostring(stats.total) }
    end,
  },
}

return stats
`

const statsManifest = `name: Stats
author: test
version: 1
purpose: track gold totals
save_on_reload:
  - total
`

// fabric is a fully wired proxy core minus the network: the client side
// is a recording recipient and the mud side a string sink.
type fabric struct {
	bus      *event.Bus
	triggers *trigger.Engine
	settings *setting.Registry
	engine   *command.Engine
	pipe     *pipeline.Pipeline
	manager  *plugin.Manager

	delivered []string
	toMud     []string
}

func (f *fabric) handle(text string) bool {
	return f.engine.Handle(text, "01JCLIENT")
}

func (f *fabric) clientLine(text string) {
	c, err := record.NewContainer(record.OriginClient,
		record.New(text, record.OriginClient, record.KindIO))
	Expect(err).NotTo(HaveOccurred())
	Expect(f.pipe.ProcessClientToMud(c, "01JCLIENT")).To(Succeed())
}

func (f *fabric) mudLine(text string) {
	c, err := record.NewContainer(record.OriginMud, text)
	Expect(err).NotTo(HaveOccurred())
	Expect(f.pipe.ProcessMudToClient(c, pipeline.SendOptions{})).To(Succeed())
}

func newFabric(dataDir, pluginRoot string) *fabric {
	f := &fabric{}
	f.bus = event.NewBus()
	record.EventStackFunc = f.bus.Stack

	caps := capability.NewRegistry()
	f.settings = setting.NewRegistry(f.bus, func(id string) (setting.Store, error) {
		return setting.NewFileStore(filepath.Join(dataDir, id+".yaml"))
	})
	timers := timer.NewScheduler()
	var err error
	f.triggers, err = trigger.NewEngine(f.bus, core.ProxyID)
	Expect(err).NotTo(HaveOccurred())

	f.engine = command.NewEngine(
		func() string {
			prefix, getErr := f.settings.GetString("command_prefix")
			if getErr != nil || prefix == "" {
				return command.DefaultPrefix
			}
			return prefix
		},
		func(r command.Response) {
			Expect(f.pipe.SendInternal(r.Messages, pipeline.InternalOptions{
				NoPreamble: !r.Preamble,
				Send:       pipeline.SendOptions{Include: []string{r.ClientID}},
			})).To(Succeed())
		},
	)

	f.pipe = pipeline.New(f.bus, core.ProxyID,
		pipeline.WithMudSink(func(text string) { f.toMud = append(f.toMud, text) }),
		pipeline.WithClients(func() []pipeline.Recipient {
			return []pipeline.Recipient{{
				ID:       "01JCLIENT",
				LoggedIn: true,
				Deliver:  func(text string) { f.delivered = append(f.delivered, text) },
			}}
		}),
	)

	Expect(f.pipe.RegisterCommandDispatch(f.engine)).To(Succeed())

	_, err = f.bus.RegisterCallback(pipeline.EventToClientModify, event.Callback{
		Name:  "run_triggers",
		Owner: core.ProxyID,
		Fn: func(data *event.DataRecord) error {
			if ln := data.Line("line"); ln != nil {
				f.triggers.ProcessLine(ln)
			}
			return nil
		},
	}, event.DefaultPriority)
	Expect(err).NotTo(HaveOccurred())

	deps := plugin.Deps{
		Bus:      f.bus,
		Caps:     caps,
		Settings: f.settings,
		Timers:   timers,
		Triggers: f.triggers,
		Commands: f.engine,
	}
	f.manager = plugin.NewManager(deps,
		plugin.WithSearchRoots(pluginRoot),
		plugin.WithHost(lua.NewHost(deps)))

	Expect(core.RegisterAll(f.manager, core.Services{
		Version:      "0.1.0",
		Manager:      f.manager,
		MudAddr:      "mud.example.com:4000",
		MudConnected: func() bool { return true },
		Clients:      func() []proxy.ClientInfo { return nil },
		Shutdown:     func() {},
		SetLogLevel:  func(string) {},
	})).To(Succeed())

	Expect(f.manager.Discover()).To(Succeed())
	Expect(f.manager.LoadAll()).To(Succeed())
	return f
}

var _ = Describe("Plugin fabric", func() {
	var f *fabric

	BeforeEach(func() {
		pluginRoot := GinkgoT().TempDir()
		dir := filepath.Join(pluginRoot, "example", "stats")
		Expect(os.MkdirAll(dir, 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "plugin.yaml"), []byte(statsManifest), 0o644)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "plugin.lua"), []byte(statsScript), 0o644)).To(Succeed())

		f = newFabric(GinkgoT().TempDir(), pluginRoot)
	})

	It("loads builtins and discovered plugins", func() {
		Expect(f.manager.IsLoaded(core.ProxyID)).To(BeTrue())
		Expect(f.manager.IsLoaded("plugins.example.stats")).To(BeTrue())

		info, err := f.manager.Get("plugins.example.stats")
		Expect(err).NotTo(HaveOccurred())
		Expect(info.Name).To(Equal("Stats"))
		Expect(info.State).To(Equal(plugin.StateLoaded))
	})

	It("runs mud lines through triggers into plugin callbacks", func() {
		f.mudLine("You have 250 gold coins")

		d, err := f.triggers.Get("gold_total")
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Hits).To(Equal(1))

		Expect(f.handle("#bp.example.stats.total")).To(BeTrue())
		Expect(f.delivered).To(ContainElement(ContainSubstring("gold: 250")))
	})

	It("dispatches command lines on the to-mud modify event", func() {
		f.clientLine("#bp.example.stats.total")

		Expect(f.delivered).To(ContainElement(ContainSubstring("gold: 0")))
		Expect(f.toMud).To(BeEmpty())

		f.clientLine("say hello")
		Expect(f.toMud).To(ContainElement("say hello\r\n"))
	})

	It("delivers untouched mud lines to clients", func() {
		f.mudLine("the orc hits you")
		Expect(f.delivered).To(ContainElement(ContainSubstring("the orc hits you")))
	})

	It("changes the command prefix live through the settings store", func() {
		Expect(f.handle("#bp.core.settings.set command_prefix @px")).To(BeTrue())

		Expect(f.handle("#bp.example.stats.total")).To(BeFalse())
		Expect(f.handle("@px.example.stats.total")).To(BeTrue())
	})

	It("preserves declared state across a hot reload", func() {
		f.mudLine("You have 99 gold coins")
		Expect(f.handle("#bp.example.stats.total")).To(BeTrue())
		Expect(f.delivered).To(ContainElement(ContainSubstring("gold: 99")))

		Expect(f.manager.Reload("plugins.example.stats")).To(Succeed())

		f.delivered = nil
		Expect(f.handle("#bp.example.stats.total")).To(BeTrue())
		Expect(f.delivered).To(ContainElement(ContainSubstring("gold: 99")))
	})

	It("persists settings to disk across managers", func() {
		dataDir := GinkgoT().TempDir()
		pluginRoot := GinkgoT().TempDir()

		first := newFabric(dataDir, pluginRoot)
		Expect(first.handle("#bp.core.settings.set preamble_text @prism")).To(BeTrue())

		second := newFabric(dataDir, pluginRoot)
		Expect(second.settings.GetString("preamble_text")).To(Equal("@prism"))
	})
})

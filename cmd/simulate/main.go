// Command simulate drives a handful of in-process peers through the
// live collaboration synchronization core, to give a human something
// to watch converge without standing up a server.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/docopt/docopt-go"

	"github.com/liveshare-oss/synccore/internal/carrier"
	"github.com/liveshare-oss/synccore/internal/domain"
	"github.com/liveshare-oss/synccore/internal/objects"
	livesync "github.com/liveshare-oss/synccore/internal/sync"
	"github.com/liveshare-oss/synccore/internal/telemetry"
)

const version = "0.1.0"

func main() {
	usage := `synccore simulate.

Usage:
    simulate run [--clients=<n>] [--duration=<seconds>] [--interval=<ms>]
    simulate -h | --help

Options:
    -h --help              Show this screen.
    --version               Show version.
    --clients=<n>           Number of simulated peers [default: 3].
    --duration=<seconds>    How long to run before printing a summary [default: 2].
    --interval=<ms>         Update interval in milliseconds [default: 200].
`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		panic(err)
	}

	if run, _ := opts.Bool("run"); run {
		clients, _ := opts.Int("--clients")
		duration, _ := opts.Int("--duration")
		interval, _ := opts.Int("--interval")
		runSimulation(clients, time.Duration(duration)*time.Second, time.Duration(interval)*time.Millisecond)
		return
	}

	docopt.PrintHelpAndExit(nil, usage)
}

func runSimulation(numClients int, duration, interval time.Duration) {
	livesync.UpdateInterval = interval
	sink := telemetry.NewMemorySink()
	livesync.SetTelemetrySink(sink)

	bus := carrier.NewBus(domain.ContainerID("simulate"))

	type participant struct {
		clientID domain.ClientID
		peer     *carrier.Peer
		presence *objects.Presence
		facade   *livesync.Facade
	}

	now := func() int64 { return time.Now().UnixMilli() }

	participants := make([]*participant, 0, numClients)
	for i := 0; i < numClients; i++ {
		clientID := domain.ClientID(fmt.Sprintf("client-%d", i))
		peer := bus.Join(clientID, true)
		presence := objects.NewPresence(clientID, now)
		presence.SetStatus("active")

		facade, err := livesync.NewFacade(peer, domain.ObjectID("presence"), presence)
		if err != nil {
			fmt.Printf("client %s: failed to register presence: %v\n", clientID, err)
			continue
		}
		participants = append(participants, &participant{clientID: clientID, peer: peer, presence: presence, facade: facade})
	}

	fmt.Printf("simulating %d clients for %s (tick every %s)\n", len(participants), duration, interval)
	time.Sleep(duration)

	for _, p := range participants {
		seen := p.presence.Snapshot()
		fmt.Printf("%s sees %d presence entries\n", p.clientID, len(seen))
	}

	for _, p := range participants {
		p.facade.Dispose()
		bus.Leave(p.clientID)
	}

	fmt.Printf("telemetry events recorded: %d\n", len(sink.Events()))
}

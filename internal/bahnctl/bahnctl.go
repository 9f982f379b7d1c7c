// Package bahnctl implements the bahnctl command line client. It drives the
// same departure service as the HTTP API and prints the tool payloads as JSON.
package bahnctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/kr/pretty"
	"github.com/rs/zerolog"
	iso8601 "github.com/senseyeio/duration"
	"github.com/sourcegraph/conc/pool"
	"github.com/urfave/cli/v2"

	"github.com/bahnmcp/bahnmcp/internal/api/models"
	"github.com/bahnmcp/bahnmcp/internal/cache"
	"github.com/bahnmcp/bahnmcp/internal/clock"
	"github.com/bahnmcp/bahnmcp/internal/provider/resilience"
	"github.com/bahnmcp/bahnmcp/internal/transit"
	"github.com/bahnmcp/bahnmcp/internal/transit/bahn"
)

// maxConcurrentBoards bounds parallel board fetches for multi-station queries.
const maxConcurrentBoards = 4

// NewApp builds the bahnctl application. now supplies the reference time
// for --in offsets.
func NewApp(out io.Writer, now func() time.Time) *cli.App {
	if now == nil {
		now = clock.Now
	}

	return &cli.App{
		Name:      "bahnctl",
		Usage:     "Query bahn.de departure boards and journeys",
		Writer:    out,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "base-url",
				Value:   bahn.DefaultBaseURL,
				Usage:   "bahn.de web API base URL",
				EnvVars: []string{"BAHN_BASE_URL"},
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Value:   resilience.DefaultTimeout,
				Usage:   "upstream request timeout",
				EnvVars: []string{"BAHN_TIMEOUT"},
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "log upstream calls and dump domain values instead of JSON",
			},
		},
		Commands: []*cli.Command{
			stationsCommand(),
			departuresCommand(now),
			journeyCommand(),
			nearbyCommand(),
		},
	}
}

func stationsCommand() *cli.Command {
	return &cli.Command{
		Name:      "stations",
		Usage:     "resolve a station name",
		ArgsUsage: "<query>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("expected exactly one station query")
			}

			loc, err := newService(c).ResolveStation(c.Context, c.Args().First())
			if err != nil {
				return err
			}

			return emit(c, loc, models.NewStation(loc))
		},
	}
}

func departuresCommand(now func() time.Time) *cli.Command {
	return &cli.Command{
		Name:      "departures",
		Usage:     "show the departure board of one or more stations",
		ArgsUsage: "<station>...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "at",
				Usage: "board time as YYYY-MM-DDTHH:MM:SS (Europe/Berlin)",
			},
			&cli.StringFlag{
				Name:  "in",
				Usage: "board time as an ISO-8601 offset from now, e.g. PT30M",
			},
			&cli.StringSliceFlag{
				Name:  "mode",
				Usage: "restrict to a transport mode (repeatable)",
			},
			&cli.StringFlag{
				Name:  "to",
				Usage: "keep departures heading to or via this station",
			},
			&cli.IntFlag{
				Name:  "max",
				Usage: "maximum departures per station",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return errors.New("expected at least one station")
			}

			at, boardTime, err := resolveBoardTime(c.String("at"), c.String("in"), now())
			if err != nil {
				return err
			}

			modes, err := transit.ParseTransportModes(c.StringSlice("mode"))
			if err != nil {
				return err
			}

			req := transit.DepartureRequest{
				At:          at,
				Modes:       modes,
				Destination: c.String("to"),
			}
			if c.IsSet("max") {
				limit := c.Int("max")
				req.MaxResults = &limit
			}

			results, err := fetchBoards(c, newService(c), c.Args().Slice(), req, boardTime)
			if err != nil {
				return err
			}

			return emit(c, results, results)
		},
	}
}

func journeyCommand() *cli.Command {
	return &cli.Command{
		Name:      "journey",
		Usage:     "show the stops of a journey",
		ArgsUsage: "<journey-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("expected exactly one journey id")
			}

			journey, err := newService(c).GetJourney(c.Context, c.Args().First())
			if err != nil {
				return err
			}

			return emit(c, journey, models.NewJourneyResult(journey))
		},
	}
}

func nearbyCommand() *cli.Command {
	return &cli.Command{
		Name:  "nearby",
		Usage: "list stations around a coordinate",
		Flags: []cli.Flag{
			&cli.Float64Flag{Name: "lat", Required: true, Usage: "latitude"},
			&cli.Float64Flag{Name: "lon", Required: true, Usage: "longitude"},
			&cli.IntFlag{Name: "radius", Usage: "search radius in meters"},
			&cli.IntFlag{Name: "max", Usage: "maximum stations"},
		},
		Action: func(c *cli.Context) error {
			locations, err := newService(c).NearbyStations(c.Context, transit.NearbyRequest{
				Lat:    c.Float64("lat"),
				Lon:    c.Float64("lon"),
				Radius: c.Int("radius"),
				Max:    c.Int("max"),
			})
			if err != nil {
				return err
			}

			result := models.NearbyStationsResult{
				Stations: make([]models.Station, 0, len(locations)),
				Count:    len(locations),
			}
			for _, l := range locations {
				result.Stations = append(result.Stations, models.NewStation(l))
			}

			return emit(c, locations, result)
		},
	}
}

type indexedBoard struct {
	index  int
	result models.DeparturesResult
}

// fetchBoards loads the boards of all stations concurrently. Results keep
// the order of the station arguments; the first failure aborts the command.
func fetchBoards(c *cli.Context, service *transit.Service, stations []string, req transit.DepartureRequest, boardTime *string) ([]models.DeparturesResult, error) {
	p := pool.NewWithResults[indexedBoard]().
		WithErrors().
		WithContext(c.Context).
		WithCancelOnError().
		WithMaxGoroutines(maxConcurrentBoards)

	for i, station := range stations {
		i, station := i, station
		stationReq := req
		stationReq.Station = station

		p.Go(func(ctx context.Context) (indexedBoard, error) {
			loc, departures, err := service.GetDepartures(ctx, stationReq)
			if err != nil {
				return indexedBoard{}, fmt.Errorf("%s: %w", station, err)
			}

			result := models.DeparturesResult{
				Station:    models.NewStation(loc),
				BoardTime:  boardTime,
				Departures: make([]models.Departure, 0, len(departures)),
				Count:      len(departures),
			}
			for _, d := range departures {
				result.Departures = append(result.Departures, models.NewDeparture(d))
			}

			return indexedBoard{index: i, result: result}, nil
		})
	}

	boards, err := p.Wait()
	if err != nil {
		return nil, err
	}

	sort.Slice(boards, func(a, b int) bool { return boards[a].index < boards[b].index })

	results := make([]models.DeparturesResult, 0, len(boards))
	for _, b := range boards {
		results = append(results, b.result)
	}
	return results, nil
}

// resolveBoardTime turns --at or --in into a board time. Both empty means now,
// left to the service. The returned string echoes the resolved time.
func resolveBoardTime(at, in string, now time.Time) (*time.Time, *string, error) {
	switch {
	case at != "" && in != "":
		return nil, nil, errors.New("--at and --in are mutually exclusive")
	case at != "":
		t, err := time.ParseInLocation(models.DateTimeLayout, at, clock.Berlin)
		if err != nil {
			return nil, nil, errors.New("invalid --at, expected YYYY-MM-DDTHH:MM:SS")
		}
		return &t, &at, nil
	case in != "":
		offset, err := iso8601.ParseISO8601(in)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --in: %w", err)
		}
		t := offset.Shift(now.In(clock.Berlin))
		s := t.Format(models.DateTimeLayout)
		return &t, &s, nil
	default:
		return nil, nil, nil
	}
}

// newService wires a departure service from the global flags.
func newService(c *cli.Context) *transit.Service {
	level := zerolog.WarnLevel
	if c.Bool("debug") {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: c.App.ErrWriter, TimeFormat: time.RFC3339}).
		Level(level).
		With().
		Timestamp().
		Logger()

	httpCfg := resilience.DefaultClientConfig(bahn.ProviderName)
	httpCfg.Timeout = c.Duration("timeout")
	httpCfg.Logger = logger

	client := bahn.NewClient(bahn.ClientConfig{
		BaseURL:    c.String("base-url"),
		HTTPClient: resilience.NewClient(httpCfg),
		Cache:      cache.New[[]byte](cache.DefaultTTL),
		Logger:     logger,
	})

	return transit.NewService(transit.ServiceConfig{
		Provider: client,
		Logger:   logger,
	})
}

// emit prints payload as indented JSON, or dumps value with --debug.
func emit(c *cli.Context, value, payload any) error {
	if c.Bool("debug") {
		_, err := pretty.Fprintf(c.App.Writer, "%# v\n", value)
		return err
	}

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

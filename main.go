package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samuelfneumann/goa3c/actorcritic"
	"github.com/samuelfneumann/goa3c/encoder"
	"github.com/samuelfneumann/goa3c/experiment"
	"github.com/samuelfneumann/goa3c/experiment/checkpointer"
	"github.com/samuelfneumann/goa3c/experiment/tracker"
	"github.com/samuelfneumann/goa3c/solver"
	"github.com/samuelfneumann/progressbar"
	"gonum.org/v1/gonum/floats"
	"gopkg.in/yaml.v3"
)

// Observation layout of the bandit: the tile-coded context fills the
// features not taken by the image
const (
	imageSize  = 64
	numTilings = 12
	tiles      = 4
	episodeLen = 10
)

func main() {
	configFile := flag.String("config", "", "JSON or YAML experiment "+
		"config; defaults are used if empty")
	outDir := flag.String("out", ".", "directory to save data and "+
		"checkpoints in")
	checkpointEvery := flag.Int("checkpoint", 0, "checkpoint the "+
		"network every n updates; 0 disables checkpointing")
	seed := flag.Uint64("seed", 1, "random seed")
	plotData := flag.Bool("plot", false, "plot returns and losses")
	flag.Parse()

	config, err := loadConfig(*configFile, *seed)
	if err != nil {
		log.Fatalf("could not load config: %v", err)
	}

	// Tile code the context into the features left after the image
	bins := make([][]int, numTilings)
	for i := range bins {
		bins[i] = []int{tiles, tiles}
	}
	enc, err := encoder.NewTileCoding(imageSize, []float64{0, 0},
		[]float64{1, 1}, bins, *seed, false)
	if err != nil {
		log.Fatalf("could not create encoder: %v", err)
	}
	if enc.Features() != config.Network.Features {
		fmt.Fprintf(os.Stderr, "Warning: config asks for %v features but "+
			"the encoder produces %v, using %v\n", config.Network.Features,
			enc.Features(), enc.Features())
		config.Network.Features = enc.Features()
	}

	env := newBandit(config.Network.Actions, imageSize, episodeLen, *seed)

	returns := tracker.NewReturn(filepath.Join(*outDir, "returns.bin"))
	losses := tracker.NewLoss(filepath.Join(*outDir, "losses.bin"))

	var check func(*actorcritic.A3C) []checkpointer.Checkpointer
	if *checkpointEvery > 0 {
		check = func(net *actorcritic.A3C) []checkpointer.Checkpointer {
			filename := checkpointer.FilenameEnumerator(0,
				filepath.Join(*outDir, "a3c"), ".bin")
			c, err := checkpointer.NewNStep(*checkpointEvery, net, filename)
			if err != nil {
				log.Fatalf("could not create checkpointer: %v", err)
			}
			return []checkpointer.Checkpointer{c}
		}
	}

	exp, net, err := config.CreateExp(env, enc,
		[]tracker.Tracker{returns, losses}, check)
	if err != nil {
		log.Fatalf("could not create experiment: %v", err)
	}
	defer net.Close()

	if err := run(exp, config.MaxUpdates); err != nil {
		log.Fatalf("could not run experiment: %v", err)
	}

	if err := exp.Save(); err != nil {
		log.Fatalf("could not save data: %v", err)
	}

	if *plotData {
		err := tracker.Plot(filepath.Join(*outDir, "returns.png"),
			"Episodic Return", "Return", returns.Data(), 20)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
		err = tracker.Plot(filepath.Join(*outDir, "losses.png"), "Loss",
			"Loss", losses.Data(), 20)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	fmt.Printf("Updates: %v  |  Episodes: %v\n", exp.Updates(),
		len(returns.Data()))
	if r := returns.Data(); len(r) > 0 {
		last := r[len(r)-min(len(r), 10):]
		fmt.Printf("Mean return of last %v episodes: %.3f\n", len(last),
			floats.Sum(last)/float64(len(last)))
	}
	if l := losses.Data(); len(l) > 0 {
		fmt.Printf("Final loss: %.5f\n", l[len(l)-1])
	}
}

// run runs the experiment to completion, displaying its progress
func run(exp experiment.Experiment, updates int) error {
	bar := progressbar.New(50, updates, time.Second, true)
	bar.Display()
	defer bar.Close()

	for !exp.Done() {
		if _, err := exp.RunUpdate(); err != nil {
			return fmt.Errorf("run: %w", err)
		}
		bar.Increment()
	}
	return nil
}

// loadConfig reads an experiment.Config from a JSON or YAML file, or
// returns the default configuration if filename is empty
func loadConfig(filename string, seed uint64) (experiment.Config, error) {
	if filename == "" {
		adam, err := solver.NewDefaultAdam(1e-3, 1)
		if err != nil {
			return experiment.Config{}, err
		}
		return experiment.Config{
			MaxUpdates: 2000,
			Rollout:    5,
			Discount:   0.99,
			ImageSize:  imageSize,
			InfoSize:   2,
			Network:    actorcritic.DefaultConfig(seed),
			Solver:     adam,
		}, nil
	}

	data, err := ioutil.ReadFile(filename)
	if err != nil {
		return experiment.Config{}, fmt.Errorf("loadConfig: %v", err)
	}

	// YAML configs are converted to JSON so that the typed configs of
	// initializers and solvers are decoded by their UnmarshalJSON methods
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		if data, err = yamlToJSON(data); err != nil {
			return experiment.Config{}, fmt.Errorf("loadConfig: %v", err)
		}
	}

	var config experiment.Config
	if err := json.Unmarshal(data, &config); err != nil {
		return experiment.Config{}, fmt.Errorf("loadConfig: %v", err)
	}
	return config, nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var config map[string]interface{}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("yamlToJSON: %v", err)
	}
	return json.Marshal(config)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

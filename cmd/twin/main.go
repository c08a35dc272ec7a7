package main

import (
	"encoding/json"
	"io/ioutil"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/velridge/substation-twin/internal/pkg/anomaly"
	"github.com/velridge/substation-twin/internal/pkg/anomaly/webanalyzer"
	"github.com/velridge/substation-twin/internal/pkg/anomaly/zscore"
	"github.com/velridge/substation-twin/internal/pkg/asset"
	"github.com/velridge/substation-twin/internal/pkg/datastreams/mongodb"
	"github.com/velridge/substation-twin/internal/pkg/datastreams/natshandler"
	"github.com/velridge/substation-twin/internal/pkg/faults"
	"github.com/velridge/substation-twin/internal/pkg/metrics"
	"github.com/velridge/substation-twin/internal/pkg/scada"
	"github.com/velridge/substation-twin/internal/pkg/solver"
	"github.com/velridge/substation-twin/internal/pkg/solver/virtualsolver"
	"github.com/velridge/substation-twin/internal/pkg/solver/websolver"
	"github.com/velridge/substation-twin/internal/pkg/twin"
	"github.com/velridge/substation-twin/internal/pkg/webservice"
)

type servicesConfig struct {
	HTTPAddr       string  `json:"HTTPAddr"`
	Seed           int64   `json:"Seed"`
	AnalyzerGate   float64 `json:"AnalyzerGate"`
	UseWebSolver   bool    `json:"UseWebSolver"`
	UseWebAnalyzer bool    `json:"UseWebAnalyzer"`
	EnableNATS     bool    `json:"EnableNATS"`
	EnableMongo    bool    `json:"EnableMongo"`
	EnableSCADA    bool    `json:"EnableSCADA"`
}

func main() {
	log.Println("[Main] Starting Substation Twin v0.1.0")
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	services := loadServicesConfig()

	log.Println("[Main] Building Asset Registry")
	registry := buildRegistry(services.Seed)

	log.Println("[Main] Building Solver")
	slv := buildSolver(services)

	log.Println("[Main] Building Analyzer")
	analyzer := buildAnalyzer(services)

	log.Println("[Main] Assembling Twin")
	tw := buildTwin(registry, slv, analyzer, services)

	if services.EnableNATS {
		log.Println("[Main] Connecting NATS Service")
		handler := linkNats(tw)
		defer handler.Stop()
	}
	if services.EnableMongo {
		log.Println("[Main] Connecting MongoDB Service")
		handler := linkMongo(tw)
		defer handler.Stop()
	}
	if services.EnableSCADA {
		log.Println("[Main] Starting SCADA Poller")
		poller := buildPoller(registry)
		poller.Start()
		defer poller.Stop()
	}

	log.Println("[Main] Starting Webservice")
	go func() {
		if err := webservice.New(tw).ListenAndServe(services.HTTPAddr); err != nil {
			log.Fatalf("[Main] webservice: %v", err)
		}
	}()

	tw.Start()
	<-sigs

	log.Println("[Main] Stopping system")
	tw.Stop()
}

func loadServicesConfig() servicesConfig {
	cfg := servicesConfig{HTTPAddr: ":8000", AnalyzerGate: 3.0, Seed: 1}
	jsonConfig, err := ioutil.ReadFile("./config/services.json")
	if err != nil {
		log.Println("[Main] no services config, using defaults")
		return cfg
	}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func buildRegistry(seed int64) *asset.Registry {
	jsonConfig, err := ioutil.ReadFile("./config/asset/manifest.json")
	if err != nil {
		panic(err)
	}
	registry, err := asset.NewRegistry(jsonConfig, seed)
	if err != nil {
		panic(err)
	}
	return registry
}

func buildSolver(services servicesConfig) solver.Solver {
	if services.UseWebSolver {
		jsonConfig, err := ioutil.ReadFile("./config/solver/websolver.json")
		if err != nil {
			panic(err)
		}
		slv, err := websolver.New(jsonConfig)
		if err != nil {
			panic(err)
		}
		return slv
	}

	jsonConfig, err := ioutil.ReadFile("./config/solver/virtualsolver.json")
	if err != nil {
		panic(err)
	}
	slv, err := virtualsolver.New(jsonConfig, services.Seed)
	if err != nil {
		panic(err)
	}
	return slv
}

func buildAnalyzer(services servicesConfig) anomaly.Analyzer {
	if services.UseWebAnalyzer {
		jsonConfig, err := ioutil.ReadFile("./config/anomaly/webanalyzer.json")
		if err != nil {
			panic(err)
		}
		analyzer, err := webanalyzer.New(jsonConfig)
		if err != nil {
			panic(err)
		}
		return analyzer
	}
	return zscore.New(services.AnalyzerGate)
}

func buildTwin(registry *asset.Registry, slv solver.Solver, analyzer anomaly.Analyzer, services servicesConfig) *twin.Twin {
	metricsConfig, err := ioutil.ReadFile("./config/metrics/metrics.json")
	if err != nil {
		panic(err)
	}
	aggregator, err := metrics.NewAggregator(metricsConfig, services.Seed)
	if err != nil {
		panic(err)
	}

	twinConfig, err := ioutil.ReadFile("./config/twin/twin.json")
	if err != nil {
		panic(err)
	}

	tw, err := twin.New(twinConfig, registry, aggregator,
		faults.NewLedger(services.Seed), slv, analyzer)
	if err != nil {
		panic(err)
	}
	return tw
}

func buildPoller(registry *asset.Registry) *scada.Poller {
	jsonConfig, err := ioutil.ReadFile("./config/scada/poller.json")
	if err != nil {
		panic(err)
	}
	poller, err := scada.NewPoller(jsonConfig, registry)
	if err != nil {
		panic(err)
	}
	return poller
}

func linkNats(tw *twin.Twin) natshandler.Handler {
	handler, err := natshandler.New("./config/datastreams/nats.json", tw)
	if err != nil {
		panic(err)
	}
	go handler.Process()
	return handler
}

func linkMongo(tw *twin.Twin) mongodb.Handler {
	handler, err := mongodb.New("./config/database/mongodb.json", tw)
	if err != nil {
		panic(err)
	}
	go handler.Process()
	return handler
}

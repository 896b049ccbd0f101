package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/oif-solver/solver-core/pkg/account"
	"github.com/oif-solver/solver-core/pkg/config"
	"github.com/oif-solver/solver-core/pkg/delivery"
	"github.com/oif-solver/solver-core/pkg/discovery"
	"github.com/oif-solver/solver-core/pkg/engine"
	"github.com/oif-solver/solver-core/pkg/eventbus"
	"github.com/oif-solver/solver-core/pkg/handlers"
	"github.com/oif-solver/solver-core/pkg/monitoring"
	"github.com/oif-solver/solver-core/pkg/ops"
	"github.com/oif-solver/solver-core/pkg/orderstd"
	"github.com/oif-solver/solver-core/pkg/registry"
	"github.com/oif-solver/solver-core/pkg/settlement"
	"github.com/oif-solver/solver-core/pkg/state"
	"github.com/oif-solver/solver-core/pkg/storage"
	"github.com/oif-solver/solver-core/pkg/strategy"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := buildStore(ctx, cfg)
	if err != nil {
		log.Fatalf("build store: %v", err)
	}

	signer, err := account.NewECDSASigner(cfg.PrivateKeyHex)
	if err != nil {
		log.Fatalf("load solver key: %v", err)
	}
	solverAddress, err := signer.Address(ctx)
	if err != nil {
		log.Fatalf("derive solver address: %v", err)
	}

	deliveryLogger := log.New(log.Writer(), "[Delivery:EVM] ", log.LstdFlags)
	evmDelivery := delivery.NewEVM(signer, deliveryLogger)

	discoveryEVM := discovery.NewEVM(log.New(log.Writer(), "[Discovery:EVM] ", log.LstdFlags))
	tokenSet := engine.TokenSet{}
	var approvalTargets []engine.ApprovalTarget
	openTopic := common.HexToHash(cfg.OpenEventTopic)

	for _, chain := range cfg.Networks.Chains {
		if err := evmDelivery.AddChain(ctx, chain.ChainID, chain.RPCURL); err != nil {
			log.Fatalf("chain %d: dial rpc: %v", chain.ChainID, err)
		}
		discoveryEVM.AddChain(discovery.EVMConfig{
			ChainID:        chain.ChainID,
			RPCURL:         chain.RPCURL,
			SettlerAddress: common.HexToAddress(chain.SettlerAddress),
			OpenTopic:      openTopic,
			PollInterval:   cfg.DiscoveryPollInterval,
			Standard:       "eip7683",
		})
		tokenSet[chain.ChainID] = chain.Tokens
		for _, token := range chain.Tokens {
			approvalTargets = append(approvalTargets, engine.ApprovalTarget{
				ChainID: chain.ChainID,
				Token:   token,
				Spender: chain.SettlerAddress,
			})
		}
	}

	var disc discovery.Discovery = discoveryEVM
	if cfg.OffChainFeedURL != "" {
		offChain := discovery.NewOffChain(cfg.OffChainFeedURL, "eip7683", cfg.OffChainPollInterval, nil)
		disc = discovery.NewComposite(discoveryEVM, offChain)
	}

	standards := registry.New[orderstd.Standard]()
	if err := standards.Register("eip7683", orderstd.NewEip7683()); err != nil {
		log.Fatalf("register order standard: %v", err)
	}

	strategies := registry.New[strategy.Strategy]()
	simpleStrategy := strategy.NewSimple(uint64(cfg.MaxGasPriceGwei))
	if err := strategies.Register(simpleStrategy.Name(), simpleStrategy); err != nil {
		log.Fatalf("register strategy: %v", err)
	}

	settlementOracle := settlement.NewHTTPOracle(cfg.SettlementOracleURL, cfg.SettlementTimeout, nil)

	bus := eventbus.New(0, log.New(log.Writer(), "[EventBus] ", log.LstdFlags))
	machine := state.New(store)
	contextBuilder := engine.NewContextBuilder(evmDelivery, tokenSet, nil)

	txMonitors := monitoring.NewTxMonitorFactory(evmDelivery, bus, cfg.MinConfirmations, cfg.TxMonitorTimeout, nil)
	settlementMonitors := monitoring.NewSettlementMonitorFactory(settlementOracle, machine, bus, cfg.TxMonitorTimeout, nil)

	intentHandler := handlers.NewIntentHandler(machine, store, bus, standards, strategies, contextBuilder, solverAddress, cfg.StrategyName, nil)
	orderHandler := handlers.NewOrderHandler(machine, store, bus, evmDelivery, standards, txMonitors.Watch, nil)
	txHandler := handlers.NewTxHandler(machine, bus, txMonitors, settlementMonitors, nil)
	settlementHandler := handlers.NewSettlementHandler(machine, bus, evmDelivery, standards, txMonitors.Watch, cfg.ClaimBatchSize, nil)

	tokenApprovals := engine.NewTokenApprovals(evmDelivery, solverAddress, approvalTargets, cfg.MinConfirmations, nil)
	recovery := engine.NewRecovery(machine, store, bus, evmDelivery, settlementOracle, settlementMonitors.Watch, nil)

	promRegistry := prometheus.NewRegistry()
	metrics := ops.NewMetrics(promRegistry)

	eng := engine.New(
		store, evmDelivery, disc, settlementOracle, machine, bus,
		intentHandler, orderHandler, txHandler, settlementHandler,
		tokenApprovals, recovery, metrics,
		engine.Config{
			CleanupInterval:     cfg.CleanupInterval,
			TxGateCapacity:      cfg.TxGateCapacity,
			GeneralGateCapacity: cfg.GeneralGateCapacity,
		},
		nil,
	)

	health := ops.NewHealthStatus()
	health.SetStore("ok")
	health.SetDelivery("ok")
	health.SetDiscovery("ok")
	opsServer := ops.NewServer(health, bus, promRegistry)

	healthSrv := &http.Server{Addr: cfg.HealthAddr, Handler: opsServer.HealthMux()}
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: opsServer.MetricsMux()}
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("health server stopped: %v", err)
		}
	}()
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	runErr := eng.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = healthSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	settlementHandler.Flush(shutdownCtx)

	if runErr != nil {
		log.Fatalf("engine stopped with error: %v", runErr)
	}
}

func buildStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.StoreBackend {
	case "postgres":
		return storage.NewPQStore(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns, cfg.DatabaseMaxIdle)
	default:
		db, err := dbm.NewGoLevelDB("solver", cfg.StoreDataDir)
		if err != nil {
			return nil, err
		}
		return storage.NewKVStore(db), nil
	}
}

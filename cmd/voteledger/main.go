package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/lvdashuaibi/voteledger/config"
	"github.com/lvdashuaibi/voteledger/internal/api/graph"
	"github.com/lvdashuaibi/voteledger/internal/bank"
	intkafka "github.com/lvdashuaibi/voteledger/internal/kafka"
	"github.com/lvdashuaibi/voteledger/internal/keeper"
	"github.com/lvdashuaibi/voteledger/internal/ledger"
	"github.com/lvdashuaibi/voteledger/internal/lock"
	"github.com/lvdashuaibi/voteledger/internal/logging"
	"github.com/lvdashuaibi/voteledger/internal/model"
	"github.com/lvdashuaibi/voteledger/internal/repository"
	"github.com/lvdashuaibi/voteledger/internal/service"
)

const shutdownTimeout = 10 * time.Second

var (
	configPath = flag.String("config", "config/config.yaml", "配置文件路径")
	envFile    = flag.String("env", ".env", "环境变量文件，不存在时忽略")
	instanceID = flag.Int("instance", 1, "实例ID，用于区分多个实例")
	fund       = flag.String("fund", "", "启动时给账户充值，格式 0xaddr=gwei,0xaddr=gwei")
)

func main() {
	// 解析命令行参数
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		log.Fatalf("加载环境变量文件失败: %v", err)
	}

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	logger, restoreLogger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer restoreLogger()
	defer logger.Sync()
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	logger = logger.With(zap.Int("instance", *instanceID))
	logger.Info("配置加载成功")

	funding, err := parseFunding(*fund)
	if err != nil {
		logger.Fatal("解析充值参数失败", zap.Error(err))
	}

	ctx := context.Background()

	// 创建数据库连接
	mysqlRepo, err := repository.NewMySQLRepository(cfg.MySQL)
	if err != nil {
		logger.Fatal("初始化MySQL仓库失败", zap.Error(err))
	}
	defer mysqlRepo.Close()
	if err := mysqlRepo.CreateSchema(ctx); err != nil {
		logger.Fatal("创建数据表失败", zap.Error(err))
	}
	logger.Info("MySQL仓库初始化成功")

	// 创建Redis连接
	redisRepo, err := repository.NewRedisRepository(cfg.Redis)
	if err != nil {
		logger.Fatal("初始化Redis仓库失败", zap.Error(err))
	}
	defer redisRepo.Close()
	logger.Info("Redis仓库初始化成功")

	snapshots := repository.NewSnapshotStore(mysqlRepo, redisRepo, logger)

	// 资金划转通道
	var settler ledger.Settler
	switch cfg.Settlement.Backend {
	case "memory":
		book := bank.NewBook()
		for _, f := range funding {
			book.Deposit(f.address, f.amount)
		}
		settler = book
	default:
		for _, f := range funding {
			if err := mysqlRepo.Credit(ctx, f.address, f.amount); err != nil {
				logger.Fatal("账户充值失败", zap.Error(err))
			}
			balance, err := mysqlRepo.Balance(ctx, f.address)
			if err != nil {
				logger.Fatal("查询账户余额失败", zap.Error(err))
			}
			logger.Info("账户充值成功", zap.String("address", f.address.String()), zap.Uint64("balance", uint64(balance)))
		}
		settler = mysqlRepo
	}
	logger.Info("资金划转通道初始化成功", zap.String("backend", cfg.Settlement.Backend))

	owner, err := model.ParseAddress(cfg.Ledger.Owner)
	if err != nil {
		logger.Fatal("无效的 ledger.owner", zap.Error(err))
	}
	address, err := model.ParseAddress(cfg.Ledger.Address)
	if err != nil {
		logger.Fatal("无效的 ledger.address", zap.Error(err))
	}
	l, err := ledger.New(ledger.Config{
		Owner:    owner,
		Address:  address,
		Fee:      model.Amount(cfg.Ledger.Fee),
		LongLock: cfg.Ledger.LongLock,
	}, ledger.WithSettler(settler), ledger.WithLogger(logger.Named("ledger")))
	if err != nil {
		logger.Fatal("创建账本失败", zap.Error(err))
	}

	// 创建Kafka生产者，未启用时事件直接写入审计日志
	var publisher service.EventPublisher
	if cfg.Kafka.Enabled {
		producer, err := intkafka.NewProducer(cfg.Kafka)
		if err != nil {
			logger.Fatal("初始化Kafka生产者失败", zap.Error(err))
		}
		defer producer.Close()
		publisher = producer
		logger.Info("Kafka生产者初始化成功")
	}

	svc := service.NewLedgerService(l, snapshots, publisher, mysqlRepo, logger.Named("service"))
	if err := svc.Recover(ctx); err != nil {
		logger.Fatal("恢复账本失败", zap.Error(err))
	}

	// 创建分布式锁
	distributedLock, err := lock.New(cfg, logger)
	if err != nil {
		logger.Fatal("初始化分布式锁失败", zap.Error(err), zap.String("backend", cfg.Lock.Backend))
	}
	defer distributedLock.Close()
	logger.Info("分布式锁初始化成功", zap.String("backend", cfg.Lock.Backend))

	// 竞选写入节点
	elector := service.NewElector(svc, distributedLock, cfg.Lock.WriterLockName, cfg.Lock.AcquireTimeout, logger.Named("elector"))
	if elector.Campaign(ctx) {
		logger.Info("实例获取写入锁成功，作为写入节点启动")
	} else {
		logger.Info("实例未获取到写入锁，以只读节点模式启动")
	}
	elector.Start()
	defer elector.Stop()

	// 启动Kafka消费者
	if cfg.Kafka.Enabled {
		consumer, err := intkafka.NewConsumer(cfg.Kafka)
		if err != nil {
			logger.Fatal("初始化Kafka消费者失败", zap.Error(err))
		}
		defer consumer.Stop()
		consumer.StartConsuming(svc.ProcessLedgerEvent)
		logger.Info("Kafka消费者已启动")
	}

	// 自动关闭到期轮次
	if cfg.Keeper.Enabled {
		k, err := keeper.NewKeeper(svc, distributedLock, cfg.Keeper, logger.Named("keeper"))
		if err != nil {
			logger.Fatal("初始化keeper失败", zap.Error(err))
		}
		k.Start()
		defer k.Stop()
		logger.Info("keeper已启动", zap.Duration("interval", cfg.Keeper.Interval))
	}

	// 创建GraphQL服务
	graphqlServer := graph.NewGraphQLServer(svc, cfg.GraphQL, logger.Named("graphql"))

	// 计算端口，支持多实例
	serverPort := cfg.Server.Port + *instanceID - 1

	// 启动HTTP服务器(异步)
	go func() {
		if err := graphqlServer.Start(serverPort); err != nil {
			logger.Fatal("启动GraphQL服务器失败", zap.Error(err))
		}
	}()

	logger.Sugar().Infof("Vote Ledger 实例 %d 已启动，服务地址: http://localhost:%d", *instanceID, serverPort)

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("正在关闭服务...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := graphqlServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("关闭GraphQL服务器失败", zap.Error(err))
	}
}

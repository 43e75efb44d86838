package graph

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"
	"go.uber.org/zap"

	"github.com/lvdashuaibi/voteledger/config"
	"github.com/lvdashuaibi/voteledger/internal/logging"
	"github.com/lvdashuaibi/voteledger/internal/model"
)

// GraphQLServer GraphQL服务器
type GraphQLServer struct {
	schema     *graphql.Schema
	engine     *gin.Engine
	httpServer *http.Server
	logger     *zap.Logger
}

// NewGraphQLServer 创建新的GraphQL服务器
func NewGraphQLServer(api LedgerAPI, cfg config.GraphQLConfig, logger *zap.Logger) *GraphQLServer {
	logger = logging.OrNop(logger)
	schema := graphql.MustParseSchema(schemaString, NewResolver(api),
		graphql.UseFieldResolvers(),
	)

	path := cfg.Path
	if path == "" {
		path = "/graphql"
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger), corsMiddleware(), callerMiddleware())

	engine.POST(path, gin.WrapH(&relay.Handler{Schema: schema}))
	engine.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(fmt.Sprintf(playgroundHTML, path)))
	})
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "writer": api.IsWriter()})
	})

	return &GraphQLServer{
		schema: schema,
		engine: engine,
		logger: logger,
	}
}

// Handler HTTP处理器
func (s *GraphQLServer) Handler() http.Handler {
	return s.engine
}

// Schema 已解析的GraphQL Schema
func (s *GraphQLServer) Schema() *graphql.Schema {
	return s.schema
}

// Start 启动GraphQL服务器，Shutdown 后返回 nil
func (s *GraphQLServer) Start(port int) error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("GraphQL服务已启动", zap.String("addr", s.httpServer.Addr))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 优雅关闭
func (s *GraphQLServer) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// callerMiddleware 解析调用方地址请求头，格式错误时直接拒绝
func callerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(CallerHeader)
		if header == "" {
			c.Next()
			return
		}
		caller, err := model.ParseAddress(header)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.Request = c.Request.WithContext(WithCaller(c.Request.Context(), caller))
		c.Next()
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+CallerHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP请求",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// playgroundHTML GraphQL Playground HTML
const playgroundHTML = `
<!DOCTYPE html>
<html>
<head>
  <meta charset=utf-8/>
  <meta name="viewport" content="user-scalable=no, initial-scale=1.0, minimum-scale=1.0, maximum-scale=1.0, minimal-ui">
  <title>Vote Ledger GraphQL Playground</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/graphql-playground-react@1.7.22/build/static/css/index.css" />
  <link rel="shortcut icon" href="https://cdn.jsdelivr.net/npm/graphql-playground-react@1.7.22/build/favicon.png" />
  <script src="https://cdn.jsdelivr.net/npm/graphql-playground-react@1.7.22/build/static/js/middleware.js"></script>
</head>
<body>
  <div id="root">
    <style>
      body {
        background-color: rgb(23, 42, 58);
        font-family: Open Sans, sans-serif;
        height: 90vh;
      }
      #root {
        height: 100%%;
        width: 100%%;
        display: flex;
        align-items: center;
        justify-content: center;
      }
      .loading {
        font-size: 32px;
        font-weight: 200;
        color: rgba(255, 255, 255, .6);
        margin-left: 20px;
      }
      img {
        width: 78px;
        height: 78px;
      }
      .title {
        font-weight: 400;
      }
    </style>
    <img src='https://cdn.jsdelivr.net/npm/graphql-playground-react@1.7.22/build/logo.png' alt=''>
    <div class="loading"> 
      <span class="title">Vote Ledger GraphQL Playground</span>
    </div>
  </div>
  <script>window.addEventListener('load', function (event) {
      GraphQLPlayground.init(document.getElementById('root'), {
        endpoint: '%s'
      })
    })</script>
</body>
</html>
`

package main

import (
	"context"
	"log"

	"example/resume-api/app"
	"example/resume-api/app/config"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
)

var ginLambda *ginadapter.GinLambda

// init runs once per Lambda container (cold start)
func init() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	log.SetFlags(cfg.Logs.Flags())
	// each container has its own memory and /tmp
	if err := cfg.RequireSharedState(); err != nil {
		log.Fatalf("refusing to start: %v", err)
	}
	// the connection pool lives as long as the container
	h, _, err := app.Build(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to initialize service: %v", err)
	}
	router, err := app.NewRouter(h, cfg)
	if err != nil {
		log.Fatalf("failed to initialize router: %v", err)
	}

	// Wrap Gin router with Lambda adapter
	ginLambda = ginadapter.New(router)
}

// Handler is the Lambda entrypoint for API Gateway REST/HTTP API (proxy integration)
func Handler(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return ginLambda.ProxyWithContext(ctx, req)
}

func main() {
	lambda.Start(Handler)
}

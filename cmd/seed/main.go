package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"credit-settlement/internal/config"
	"credit-settlement/internal/domain/model"
	pg "credit-settlement/internal/infra/db/postgres"
	"credit-settlement/internal/infra/logging"
	"credit-settlement/internal/infra/web"
	"credit-settlement/internal/usecase"
)

// seed creates one UNPAID payment for staging and prints the memo the tester must
// put into the bank transfer content.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	userID := flag.String("user", "", "user id (UUID); a random one when empty")
	typ := flag.String("type", "credits", "payment type: credits | subscription")
	amount := flag.Int64("amount", 0, "expected amount; derived from -tier and -cycle when zero")
	tier := flag.String("tier", "BASIC", "tier used to derive the amount of a subscription payment")
	cycle := flag.String("cycle", "monthly", "billing cycle used to derive the amount: monthly | yearly")
	mint := flag.String("mint-token", "", "also print a service token for this subject")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	if *userID == "" {
		*userID = uuid.NewString()
	}
	if _, err := uuid.Parse(*userID); err != nil {
		log.Fatalf("user: %v", err)
	}

	payType := model.PaymentType(strings.ToLower(*typ))
	if *amount == 0 {
		*amount, err = derivedAmount(cfg, payType, *tier, *cycle)
		if err != nil {
			log.Fatalf("amount: %v", err)
		}
	}

	codec := usecase.NewMemoCodec(cfg.Settlement.SystemCode, cfg.Settlement.IDLength)
	paymentUC := usecase.NewPaymentUseCase(pg.NewPaymentRepo(pool), codec, logging.Nop())

	p, memo, err := paymentUC.Create(ctx, *userID, *amount, payType)
	if err != nil {
		log.Fatalf("create payment: %v", err)
	}
	fmt.Printf("payment: %s\n", p.ID)
	fmt.Printf("user:    %s\n", p.UserID)
	fmt.Printf("type:    %s\n", p.Type)
	fmt.Printf("amount:  %d\n", p.Amount)
	fmt.Printf("memo:    %s\n", memo)

	if *mint != "" {
		if cfg.Security.ServiceJWTSecret == "" {
			log.Fatalf("mint-token: security.service_jwt_secret is not configured")
		}
		tok, err := web.NewAuthManager(cfg.Security.ServiceJWTSecret, 24*time.Hour).Mint(*mint)
		if err != nil {
			log.Fatalf("mint-token: %v", err)
		}
		fmt.Printf("token:   %s\n", tok)
	}
}

func derivedAmount(cfg *config.Config, typ model.PaymentType, tierName, cycle string) (int64, error) {
	if typ != model.PaymentTypeSubscription {
		return 0, fmt.Errorf("-amount is required for %q payments", typ)
	}
	prices, err := cfg.PriceTable()
	if err != nil {
		return 0, err
	}
	want := model.Tier(strings.ToUpper(tierName))
	for _, row := range prices.Rows() {
		if row.Tier != want {
			continue
		}
		if model.BillingCycle(strings.ToLower(cycle)) == model.BillingCycleYearly {
			return row.YearlyPrice, nil
		}
		return row.MonthlyPrice, nil
	}
	return 0, fmt.Errorf("tier %q is not priced", tierName)
}

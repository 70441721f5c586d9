package mocks

//go:generate mockgen -destination=./mock_broker.go -package=mocks github.com/maeda-takumi/trade-kabu/internal/broker Broker
//go:generate mockgen -destination=./mock_store.go -package=mocks github.com/maeda-takumi/trade-kabu/internal/store OrderStore

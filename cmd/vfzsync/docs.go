package main

//go:generate swag init -g cmd/vfzsync/main.go -o docs

// @title           vfzsync API
// @version         0.1.0
// @description     vPoller to FNT Command to Zabbix reconciliation: passes, run history, stats and trapper pushes.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

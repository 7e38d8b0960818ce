package server

// Server объединяет HTTP-серверы control API, каждый отвечает за свою
// группу ресурсов.
type Server struct {
	EngineServer
	TemplateServer
	TradeServer
	VaultServer
}

func NewServer(
	engineServer EngineServer,
	templateServer TemplateServer,
	tradeServer TradeServer,
	vaultServer VaultServer,
) Server {
	return Server{
		EngineServer:   engineServer,
		TemplateServer: templateServer,
		TradeServer:    tradeServer,
		VaultServer:    vaultServer,
	}
}

package config

type RouteConfig interface {
	GetLoginRoute() string
	GetLandingRoute() string
}

type Routes struct {
	LoginRoute   string `env:"LOGIN_ROUTE" envDefault:"/auth/login"`
	LandingRoute string `env:"LANDING_ROUTE" envDefault:"/dashboard"`
}

var _ RouteConfig = Routes{}

func (r Routes) GetLoginRoute() string {
	return r.LoginRoute
}

func (r Routes) GetLandingRoute() string {
	return r.LandingRoute
}

package ipinfo

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"linewatch/pkg/models"

	"github.com/jellydator/ttlcache/v3"
	"github.com/spf13/viper"
)

type IPInfoResponse struct {
	IP       string `json:"ip"`
	Hostname string `json:"hostname"`
	Anycast  bool   `json:"anycast"`
	City     string `json:"city"`
	Region   string `json:"region"`
	Country  string `json:"country"`
	Loc      string `json:"loc"`
	Org      string `json:"org"`
	Postal   string `json:"postal"`
	Timezone string `json:"timezone"`
}

// Resolver looks up IP metadata, caching responses so that re-registering a
// fleet of lines doesn't hammer the API.
type Resolver struct {
	cache *ttlcache.Cache[string, IPInfoResponse]
}

func NewResolver(ttl time.Duration) *Resolver {
	cache := ttlcache.New[string, IPInfoResponse](
		ttlcache.WithTTL[string, IPInfoResponse](ttl),
		ttlcache.WithDisableTouchOnHit[string, IPInfoResponse]())
	return &Resolver{cache: cache}
}

func (r *Resolver) GetIPInfo(ip string) (IPInfoResponse, error) {
	if item := r.cache.Get(ip); item != nil {
		return item.Value(), nil
	}

	url := fmt.Sprintf("https://ipinfo.io/%s?token=%s", ip, viper.GetString("ipinfo.token"))
	resp, err := http.Get(url)
	if err != nil {
		return IPInfoResponse{}, err
	}
	defer resp.Body.Close()

	var ipInfo IPInfoResponse
	err = json.NewDecoder(resp.Body).Decode(&ipInfo)
	if err != nil {
		return IPInfoResponse{}, err
	}

	r.cache.Set(ip, ipInfo, ttlcache.DefaultTTL)
	return ipInfo, nil
}

func UpdateLineWithIPInfo(line *models.Line, ipInfo IPInfoResponse) {
	// Parse ASN and AS org name from the "org" field
	orgParts := strings.SplitN(ipInfo.Org, " ", 2)
	if len(orgParts) == 2 {
		line.ASNumber = strings.TrimPrefix(orgParts[0], "AS")
		line.ASOrg = orgParts[1]
	} else {
		// If we can't parse it properly, store the whole string in ASOrg
		line.ASOrg = ipInfo.Org
	}

	line.City = ipInfo.City
	line.Region = ipInfo.Region
	line.Country = ipInfo.Country
}

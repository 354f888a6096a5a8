package deploy

import (
	"fmt"
	"strings"

	"github.com/bacalhau-project/vpsdeploy/pkg/models"
)

const (
	SaveProcessListCommand = "pm2 save 2>&1"
	ListProcessesCommand   = "sleep 2 && pm2 list 2>&1"
	NginxTestCommand       = "nginx -t 2>&1"
	NginxReloadCommand     = "systemctl reload nginx 2>&1"

	RemotePatchScriptPath = "/tmp/_nginx_patch.py"
)

func InstallDepsCommand(t *models.Target) string {
	return fmt.Sprintf("cd %s && npm install --omit=dev 2>&1 | tail -5", shellQuote(t.RemoteAPIRoot))
}

func PrepareUploadsCommand(t *models.Target) string {
	dir := shellQuote(t.UploadsDir)
	return fmt.Sprintf("mkdir -p %s && chmod 755 %s", dir, dir)
}

func RestartProcessCommand(t *models.Target) string {
	return fmt.Sprintf("pm2 restart %s 2>&1 || pm2 start %s 2>&1",
		shellQuote(t.ProcessName), shellQuote(t.EcosystemPath()))
}

func HealthCheckCommand(t *models.Target) string {
	return "curl -s " + shellQuote(t.HealthURL)
}

func RunPatchScriptCommand(scriptPath string) string {
	return "python3 " + shellQuote(scriptPath)
}

// shellQuote leaves plain words untouched and single-quotes anything else.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, func(r rune) bool {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return false
		}
		switch r {
		case '-', '_', '.', '/', '@', ':', ',', '+', '=', '%':
			return false
		}
		return true
	}) == -1 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

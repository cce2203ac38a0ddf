// internal/orchestrator/prune.go
package orchestrator

import (
	"fmt"

	"github.com/xkilldash9x/reporting-cli/api/schemas"
)

// Application chrome that is stripped from known report pages.
const (
	pruneChromeJS = `(() => {
  document.querySelectorAll("[class^='euiButton']").forEach((e) => e.remove());
  document.querySelectorAll("[class^='euiHeader']").forEach((e) => e.remove());%s
  document.body.style.paddingTop = '0px';
  return true;
})()`

	pruneEditorJS = `
  document.querySelector('[data-test-subj="splitPanelResizer"]')?.remove();
  document.querySelector('.visEditor__collapsibleSidebar')?.remove();`
)

// pruneScript returns the script removing buttons and headers, plus the
// editor panel for visualizations. Empty for sources that are not pruned.
func pruneScript(source schemas.ReportSource) string {
	if !source.Prunable() {
		return ""
	}
	editor := ""
	if source.HasEditor() {
		editor = pruneEditorJS
	}
	return fmt.Sprintf(pruneChromeJS, editor)
}

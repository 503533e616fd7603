package chrome

import (
	"encoding/json"
	"fmt"

	"github.com/edgecomet/pdfbatch/internal/capture"
)

// Page scripts run through Runtime.evaluate. Each one is an expression that returns
// a JSON-serializable value, and each is safe to run more than once on the same page.

const measureScript = `(function() {
	var el = document.documentElement;
	return {width: el.scrollWidth, height: el.scrollHeight};
})()`

// statusFallbackScript reads the navigation status when the network event was missed
const statusFallbackScript = `(function() {
	try {
		var navEntry = performance.getEntriesByType('navigation')[0];
		if (navEntry && navEntry.responseStatus) {
			return navEntry.responseStatus;
		}
		return 0;
	} catch (e) {
		return 0;
	}
})()`

const scrollStepScript = `(function() {
	var before = window.scrollY;
	window.scrollBy(0, window.innerHeight);
	var bottom = window.scrollY + window.innerHeight >= document.documentElement.scrollHeight - 1;
	return bottom || window.scrollY === before;
})()`

const scrollTopScript = `(function() { window.scrollTo(0, 0); return true; })()`

const expandAccordionsScript = `(function() {
	var n = 0;
	document.querySelectorAll('details:not([open])').forEach(function(d) { d.open = true; n++; });
	document.querySelectorAll('[aria-expanded="false"]').forEach(function(el) {
		try { el.click(); n++; } catch (e) {}
	});
	return n;
})()`

const replaceIframesScript = `(function() {
	var n = 0;
	document.querySelectorAll('iframe').forEach(function(frame) {
		var src = frame.getAttribute('src') || '';
		var origin;
		try { origin = new URL(src, location.href).origin; } catch (e) { return; }
		if (!src || origin === location.origin) { return; }
		var box = document.createElement('div');
		box.setAttribute('data-pdfbatch-iframe', '');
		box.style.width = frame.offsetWidth + 'px';
		box.style.height = frame.offsetHeight + 'px';
		box.style.border = '1px solid #ccc';
		box.style.display = 'flex';
		box.style.alignItems = 'center';
		box.style.justifyContent = 'center';
		box.style.boxSizing = 'border-box';
		var link = document.createElement('a');
		link.href = src;
		link.textContent = src;
		box.appendChild(link);
		frame.replaceWith(box);
		n++;
	});
	return n;
})()`

// jsString encodes s as a JavaScript string literal
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// hideScript injects one display:none rule. Re-running replaces the rule instead of stacking it.
func hideScript(selectors []string) (string, bool) {
	list := capture.SanitizeSelectors(selectors)
	if list == "" {
		return "", false
	}
	css := list + " { display: none !important; }"
	return fmt.Sprintf(`(function() {
	var style = document.getElementById('pdfbatch-hide');
	if (!style) {
		style = document.createElement('style');
		style.id = 'pdfbatch-hide';
		(document.head || document.documentElement).appendChild(style);
	}
	style.textContent = %s;
	return document.querySelectorAll(%s).length;
})()`, jsString(css), jsString(list)), true
}

func removeScript(selectors []string) (string, bool) {
	list := capture.SanitizeSelectors(selectors)
	if list == "" {
		return "", false
	}
	return fmt.Sprintf(`(function() {
	var n = 0;
	document.querySelectorAll(%s).forEach(function(el) { el.remove(); n++; });
	return n;
})()`, jsString(list)), true
}

// readCountersScript parses each counter's text and its target attribute as numbers
func readCountersScript(selector, targetAttr string) string {
	return fmt.Sprintf(`(function() {
	var out = [];
	document.querySelectorAll(%s).forEach(function(el) {
		var value = parseFloat((el.textContent || '').replace(/[^0-9.\-]/g, '')) || 0;
		var target = parseFloat((el.getAttribute(%s) || '').replace(/[^0-9.\-]/g, '')) || 0;
		out.push({value: value, target: target});
	});
	return out;
})()`, jsString(selector), jsString(targetAttr))
}

// snapCountersScript writes the target into every counter whose text differs from it
func snapCountersScript(selector, targetAttr string) string {
	return fmt.Sprintf(`(function() {
	var n = 0;
	document.querySelectorAll(%s).forEach(function(el) {
		var raw = el.getAttribute(%s);
		if (raw === null) { return; }
		var value = parseFloat((el.textContent || '').replace(/[^0-9.\-]/g, '')) || 0;
		var target = parseFloat(raw.replace(/[^0-9.\-]/g, '')) || 0;
		if (value !== target) { el.textContent = raw; n++; }
	});
	return n;
})()`, jsString(selector), jsString(targetAttr))
}

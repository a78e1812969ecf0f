// File: internal/scenario/evidence.go
package scenario

import (
	"context"

	"go.uber.org/zap"

	"github.com/uveworks/vigil/api/schemas"
)

// DOM audit scripts. Each returns a JSON-serializable value the session
// unmarshals straight into the evidence structs. Selectors are best-effort
// paths good enough to re-find the element for a fix.

const imageAuditScript = `
(() => {
	const sel = (el) => {
		if (el.id) return '#' + el.id;
		const parts = [];
		let node = el;
		while (node && node.nodeType === 1 && parts.length < 5) {
			let part = node.tagName.toLowerCase();
			if (node.parentElement) {
				const sibs = Array.from(node.parentElement.children).filter(c => c.tagName === node.tagName);
				if (sibs.length > 1) part += ':nth-of-type(' + (sibs.indexOf(node) + 1) + ')';
			}
			parts.unshift(part);
			node = node.parentElement;
		}
		return parts.join(' > ');
	};
	return Array.from(document.querySelectorAll('img')).map(img => ({
		src: img.currentSrc || img.src || '',
		alt: img.alt || '',
		naturalWidth: img.naturalWidth,
		naturalHeight: img.naturalHeight,
		complete: img.complete,
		selector: sel(img),
	}));
})()`

const controlAuditScript = `
(() => {
	const sel = (el) => {
		if (el.id) return '#' + el.id;
		const parts = [];
		let node = el;
		while (node && node.nodeType === 1 && parts.length < 5) {
			let part = node.tagName.toLowerCase();
			if (node.parentElement) {
				const sibs = Array.from(node.parentElement.children).filter(c => c.tagName === node.tagName);
				if (sibs.length > 1) part += ':nth-of-type(' + (sibs.indexOf(node) + 1) + ')';
			}
			parts.unshift(part);
			node = node.parentElement;
		}
		return parts.join(' > ');
	};
	const controls = document.querySelectorAll('input:not([type=hidden]), button, select, textarea, a[href]');
	return Array.from(controls).map(el => {
		const tag = el.tagName.toLowerCase();
		let hasLabel = false;
		if (el.id && document.querySelector('label[for="' + CSS.escape(el.id) + '"]')) hasLabel = true;
		if (el.closest('label')) hasLabel = true;
		return {
			tag: tag,
			type: el.getAttribute('type') || '',
			id: el.id || '',
			hasLabel: hasLabel,
			hasText: (el.textContent || '').trim().length > 0 || !!el.value,
			ariaLabel: el.getAttribute('aria-label') || '',
			selector: sel(el),
		};
	});
})()`

const layoutAuditScript = `
(() => {
	const doc = document.documentElement;
	const horizontalOverflow = doc.scrollWidth > doc.clientWidth + 1;
	let clipped = 0, zeroSize = 0;
	const fixedRects = [];
	for (const el of document.querySelectorAll('body *')) {
		const style = getComputedStyle(el);
		if (style.display === 'none' || style.visibility === 'hidden') continue;
		const rect = el.getBoundingClientRect();
		if (el.textContent.trim() && style.overflow === 'hidden' && el.scrollHeight > el.clientHeight + 2) clipped++;
		if ((rect.width === 0 || rect.height === 0) && el.children.length === 0 && el.textContent.trim()) zeroSize++;
		if (style.position === 'fixed' && rect.width > 0 && rect.height > 0) fixedRects.push(rect);
	}
	let overlapping = 0;
	for (let i = 0; i < fixedRects.length; i++) {
		for (let j = i + 1; j < fixedRects.length; j++) {
			const a = fixedRects[i], b = fixedRects[j];
			if (a.left < b.right && b.left < a.right && a.top < b.bottom && b.top < a.bottom) overlapping++;
		}
	}
	return {
		horizontalOverflow: horizontalOverflow,
		clippedElements: clipped,
		zeroSizeVisible: zeroSize,
		overlappingFixed: overlapping,
	};
})()`

const contrastAuditScript = `
(() => {
	const sel = (el) => {
		if (el.id) return '#' + el.id;
		const parts = [];
		let node = el;
		while (node && node.nodeType === 1 && parts.length < 5) {
			let part = node.tagName.toLowerCase();
			if (node.parentElement) {
				const sibs = Array.from(node.parentElement.children).filter(c => c.tagName === node.tagName);
				if (sibs.length > 1) part += ':nth-of-type(' + (sibs.indexOf(node) + 1) + ')';
			}
			parts.unshift(part);
			node = node.parentElement;
		}
		return parts.join(' > ');
	};
	const parseColor = (s) => {
		const m = s.match(/rgba?\(([\d.]+),\s*([\d.]+),\s*([\d.]+)(?:,\s*([\d.]+))?\)/);
		if (!m) return null;
		return {r: +m[1], g: +m[2], b: +m[3], a: m[4] === undefined ? 1 : +m[4]};
	};
	const luminance = (c) => {
		const f = (v) => {
			v /= 255;
			return v <= 0.03928 ? v / 12.92 : Math.pow((v + 0.055) / 1.055, 2.4);
		};
		return 0.2126 * f(c.r) + 0.7152 * f(c.g) + 0.0722 * f(c.b);
	};
	const background = (el) => {
		let node = el;
		while (node && node.nodeType === 1) {
			const c = parseColor(getComputedStyle(node).backgroundColor);
			if (c && c.a > 0.9) return c;
			node = node.parentElement;
		}
		return {r: 255, g: 255, b: 255, a: 1};
	};
	const out = [];
	for (const el of document.querySelectorAll('body *')) {
		if (out.length >= 20) break;
		const hasOwnText = Array.from(el.childNodes).some(
			n => n.nodeType === 3 && n.textContent.trim().length > 0);
		if (!hasOwnText) continue;
		const style = getComputedStyle(el);
		if (style.display === 'none' || style.visibility === 'hidden') continue;
		const fg = parseColor(style.color);
		if (!fg) continue;
		const bg = background(el);
		const lf = luminance(fg), lb = luminance(bg);
		const ratio = (Math.max(lf, lb) + 0.05) / (Math.min(lf, lb) + 0.05);
		if (ratio < 4.5) out.push({selector: sel(el), ratio: Math.round(ratio * 10) / 10});
	}
	return out;
})()`

const performanceScript = `
(() => {
	const nav = performance.getEntriesByType('navigation')[0];
	const paint = performance.getEntriesByType('paint');
	const lcpEntries = performance.getEntriesByType('largest-contentful-paint');
	const resources = performance.getEntriesByType('resource');
	const firstPaint = paint.find(p => p.name === 'first-paint');
	let transfer = resources.reduce((sum, r) => sum + (r.transferSize || 0), 0);
	if (nav) transfer += nav.transferSize || 0;
	return {
		loadTimeMs: nav ? nav.loadEventEnd - nav.startTime : 0,
		domContentMs: nav ? nav.domContentLoadedEventEnd - nav.startTime : 0,
		lcpMs: lcpEntries.length ? lcpEntries[lcpEntries.length - 1].startTime : 0,
		domNodes: document.getElementsByTagName('*').length,
		resourceCount: resources.length,
		transferSizeKB: transfer / 1024,
		firstPaintMs: firstPaint ? firstPaint.startTime : 0,
	};
})()`

// Collector gathers the evidence bundle for one scenario window: harvested
// console and network events plus live DOM audits.
type Collector struct {
	logger *zap.Logger
}

// NewCollector creates an evidence collector.
func NewCollector(logger *zap.Logger) *Collector {
	return &Collector{logger: logger.Named("evidence")}
}

// Collect snapshots the session's evidence. Audit failures degrade to empty
// sections rather than failing the scenario; a dead session is the exception
// and is returned to the caller.
func (c *Collector) Collect(ctx context.Context, sess schemas.Session) (*schemas.Evidence, error) {
	ev := &schemas.Evidence{
		Console: sess.ConsoleEvents(),
		Network: sess.NetworkEvents(),
	}

	if err := sess.Evaluate(ctx, "window.location.href", &ev.PageURL); err != nil {
		return nil, err
	}

	if err := sess.Evaluate(ctx, imageAuditScript, &ev.Images); err != nil {
		c.logger.Warn("Image audit failed.", zap.Error(err))
	}
	if err := sess.Evaluate(ctx, controlAuditScript, &ev.Controls); err != nil {
		c.logger.Warn("Control audit failed.", zap.Error(err))
	}
	if err := sess.Evaluate(ctx, contrastAuditScript, &ev.Contrast); err != nil {
		c.logger.Warn("Contrast audit failed.", zap.Error(err))
	}
	if err := sess.Evaluate(ctx, layoutAuditScript, &ev.Layout); err != nil {
		c.logger.Warn("Layout audit failed.", zap.Error(err))
	}
	if err := sess.Evaluate(ctx, performanceScript, &ev.Performance); err != nil {
		c.logger.Warn("Performance snapshot failed.", zap.Error(err))
	}
	return ev, nil
}

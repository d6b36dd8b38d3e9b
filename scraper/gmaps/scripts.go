package gmaps

// In-page scripts evaluated through chromedp. Extraction happens inside the
// page so a single round-trip returns structured JSON per place.

const consentScript = `(function () {
	const labels = ['Accept all', 'Reject all', 'I agree', 'Alles akzeptieren'];
	const buttons = document.querySelectorAll('button');
	for (const btn of buttons) {
		const text = (btn.textContent || '').trim();
		const aria = btn.getAttribute('aria-label') || '';
		if (labels.some(l => text === l || aria === l)) {
			btn.click();
			return true;
		}
	}
	return false;
})();`

// challengeScript detects the provider's anti-automation interstitial.
const challengeScript = `(function () {
	if (location.pathname.indexOf('/sorry') === 0) return true;
	if (document.querySelector('form#captcha-form')) return true;
	if (document.querySelector('iframe[src*="recaptcha"]')) return true;
	const title = (document.title || '').toLowerCase();
	return title.indexOf('unusual traffic') !== -1;
})();`

const feedScrollScript = `(function () {
	const feed = document.querySelector('div[role="feed"]');
	if (feed) feed.scrollTop = feed.scrollHeight;
})();`

const endOfListScript = `(function () {
	const spans = document.querySelectorAll('div[role="feed"] span, div[role="feed"] p');
	for (const el of spans) {
		if ((el.textContent || '').indexOf("You've reached the end of the list") !== -1) return true;
	}
	return false;
})();`

const resultCountScript = `(function () {
	return document.querySelectorAll('div[role="feed"] a[href*="/maps/place/"]').length;
})();`

const listingLinksScript = `(function () {
	const anchors = document.querySelectorAll('a[href*="/maps/place/"]');
	const urls = new Set();
	for (const a of anchors) {
		if (a.href && a.href.indexOf('/maps/place/') !== -1) urls.add(a.href);
	}
	return JSON.stringify([...urls]);
})();`

// placeDetailScript reads the open detail pane. Missing fields come back
// empty; the normalizer decides what survives.
const placeDetailScript = `(function () {
	const out = {
		name: '', address: '', phone: '', website: '',
		rating: '', reviews: '', category: '', hours: ''
	};

	const h1 = document.querySelector('h1');
	if (h1) out.name = h1.textContent.trim();

	const ratingEl = document.querySelector('div[role="img"][aria-label*="star"]');
	if (ratingEl) {
		const m = (ratingEl.getAttribute('aria-label') || '').match(/([\d.]+)\s*star/);
		if (m) out.rating = m[1];
	}

	const reviewEl = document.querySelector('button[aria-label*="review"]');
	if (reviewEl) {
		const label = reviewEl.getAttribute('aria-label') || reviewEl.textContent || '';
		const m = label.match(/([\d,]+)\s*review/);
		if (m) out.reviews = m[1];
	}

	const catEl = document.querySelector('button[jsaction*="category"]');
	if (catEl) out.category = catEl.textContent.trim();

	const items = document.querySelectorAll('button[data-item-id], a[data-item-id]');
	for (const item of items) {
		const id = item.getAttribute('data-item-id') || '';
		const aria = item.getAttribute('aria-label') || '';
		const text = aria || (item.textContent || '').trim();
		if (id.indexOf('address') === 0) {
			out.address = text.replace('Address: ', '');
		} else if (id.indexOf('phone') === 0) {
			out.phone = text.replace('Phone: ', '');
		} else if (id.indexOf('authority') === 0) {
			out.website = item.getAttribute('href') || text.replace('Website: ', '');
		}
	}

	if (!out.phone) {
		const phoneBtn = document.querySelector('button[aria-label*="Phone:"]');
		if (phoneBtn) {
			out.phone = (phoneBtn.getAttribute('aria-label') || '').replace('Phone: ', '').trim();
		}
	}

	const hoursEl = document.querySelector(
		'div[aria-label*="Monday"], div[aria-label*="Sunday"], button[aria-label*="hour"]');
	if (hoursEl) {
		let hours = hoursEl.getAttribute('aria-label') || '';
		hours = hours.replace('Hours ', '').replace('. Hide open hours for the week', '');
		out.hours = hours
			.split(/(?=Monday|Tuesday|Wednesday|Thursday|Friday|Saturday|Sunday)/)
			.map(d => d.trim().replace(/[;.,\s]+$/, ''))
			.filter(Boolean)
			.join('\n');
	}

	return JSON.stringify(out);
})();`
